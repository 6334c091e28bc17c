/*
Package security seals provider instance configurations at rest.

Configs returned by ProvideResource can carry credentials, so they are stored
encrypted with AES-256-GCM:

	sealed = nonce || GCM(key, nonce, json(config), aad="burrow/config/"+id)

The additional data binds a ciphertext to its resource id. The key is derived
from the operator's passphrase with argon2id and a random per-install salt
kept next to the database (sealing.salt):

	salt, _ := security.LoadOrCreateSalt(cfg.DataDir)
	sealer, _ := security.NewConfigSealerFromPassphrase(cfg.Sealing.Passphrase, salt)

Losing the passphrase or the salt makes stored configs unrecoverable.
*/
package security
