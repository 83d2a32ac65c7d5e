package directory

import "encoding/json"

// Application types as reported by the directory catalog.
const (
	AppTypeTraditional      = "Traditional"
	AppTypeSPA              = "SPA"
	AppTypeNative           = "Native"
	AppTypeMachineToMachine = "MachineToMachine"
	AppTypeProtected        = "Protected"
)

// Application is one entry of the directory's application catalog.
// IsThirdParty is a property of the application itself and never varies per
// user.
type Application struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Type         string          `json:"type"`
	IsThirdParty bool            `json:"isThirdParty"`
	OidcMetadata OidcMetadata    `json:"oidcClientMetadata"`
	CustomData   json.RawMessage `json:"customData,omitempty"`
}

type OidcMetadata struct {
	RedirectUris []string `json:"redirectUris"`
}

// IsInteractive reports whether the application is a user-facing first-party
// candidate (as opposed to machine-to-machine or gateway-protected apps).
func (a Application) IsInteractive() bool {
	switch a.Type {
	case AppTypeTraditional, AppTypeSPA, AppTypeNative:
		return true
	}
	return false
}

// PlatformGlobal reports the explicit platform-wide access flag from the
// application's custom data. Catalogs that predate the flag simply omit it.
func (a Application) PlatformGlobal() bool {
	if len(a.CustomData) == 0 {
		return false
	}
	var data struct {
		IsPlatformGlobal bool `json:"isPlatformGlobal"`
	}
	if err := json.Unmarshal(a.CustomData, &data); err != nil {
		return false
	}
	return data.IsPlatformGlobal
}

// Organization is one entry of the directory's organization catalog.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserRef identifies a directory user inside an organization's member list.
type UserRef struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	PrimaryEmail string `json:"primaryEmail,omitempty"`
}
