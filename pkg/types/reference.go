package types

import (
	"fmt"
	"strings"
)

// ResourceReference is a resolved, read-only view of a resource bound to the
// host and storage it currently lives on.
type ResourceReference struct {
	ID                   uint64
	Name                 string
	ResourceGroupID      uint64
	ResourceGroupName    string
	ResourceProviderName string
	ResourceTypeName     string
	HostID               uint64
	HostName             string
	HostStoragePath      string
}

// ExternalID returns the path-like identifier /group/provider/type/name
func (r *ResourceReference) ExternalID() string {
	return FormatExternalID(ExternalID{
		ResourceGroupName:    r.ResourceGroupName,
		ResourceProviderName: r.ResourceProviderName,
		ResourceTypeName:     r.ResourceTypeName,
		Name:                 r.Name,
	})
}

// ExternalID holds the parsed components of an external resource id
type ExternalID struct {
	ResourceGroupName    string
	ResourceProviderName string
	ResourceTypeName     string
	Name                 string
}

// FormatExternalID encodes the components as /group/provider/type/name
func FormatExternalID(id ExternalID) string {
	return "/" + strings.Join([]string{
		id.ResourceGroupName,
		id.ResourceProviderName,
		id.ResourceTypeName,
		id.Name,
	}, "/")
}

// ParseExternalID splits an external id back into its components
func ParseExternalID(s string) (ExternalID, error) {
	if !strings.HasPrefix(s, "/") {
		return ExternalID{}, fmt.Errorf("external id must start with '/': %q", s)
	}
	parts := strings.Split(s[1:], "/")
	if len(parts) != 4 {
		return ExternalID{}, fmt.Errorf("external id must have 4 segments, got %d: %q", len(parts), s)
	}
	for _, p := range parts {
		if p == "" {
			return ExternalID{}, fmt.Errorf("external id has an empty segment: %q", s)
		}
	}
	return ExternalID{
		ResourceGroupName:    parts[0],
		ResourceProviderName: parts[1],
		ResourceTypeName:     parts[2],
		Name:                 parts[3],
	}, nil
}

// ValidateName checks that a resource or group name can be embedded in an external id
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("name %q must not contain '/'", name)
	}
	return nil
}
