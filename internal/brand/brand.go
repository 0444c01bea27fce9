// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand provides centralized branding constants for the service.
// The identity is loaded from brand.json at compile time via go:embed so
// that packaging scripts and docs generators can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultLogDir    string `json:"defaultLogDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	SocketName       string `json:"socketName"`
	BinaryName       string `json:"binaryName"`
	ServiceName      string `json:"serviceName"`
	ConfigFileName   string `json:"configFileName"`
	Copyright        string `json:"copyright"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Vendor = b.Vendor
	Website = b.Website
	Repository = b.Repository
	Description = b.Description
	Tagline = b.Tagline
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultLogDir = b.DefaultLogDir
	DefaultRunDir = b.DefaultRunDir
	SocketName = b.SocketName
	BinaryName = b.BinaryName
	ServiceName = b.ServiceName
	ConfigFileName = b.ConfigFileName
	Copyright = b.Copyright
	License = b.License
}

// Exported branding values, initialized from brand.json.
var (
	Name             string
	LowerName        string
	Vendor           string
	Website          string
	Repository       string
	Description      string
	Tagline          string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string
	SocketName       string
	BinaryName       string
	ServiceName      string
	ConfigFileName   string
	Copyright        string
	License          string
)

// Version is the build version, overridden at link time via
// -ldflags "-X grimm.is/tundra/internal/brand.Version=...".
var Version = "dev"

// Get returns the full brand structure.
func Get() Brand {
	return b
}

// UserAgent returns the HTTP user agent string for outbound requests.
func UserAgent(version string) string {
	if version == "" {
		version = Version
	}
	return Name + "/" + version + " (" + Website + ")"
}
