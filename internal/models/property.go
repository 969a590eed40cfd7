package models

// Property is a host-owned address. Exactly one property per host may have
// IsMain set; seed files are validated for that on load.
type Property struct {
	ID          string `yaml:"id" json:"id"`
	HostID      string `yaml:"host_id" json:"host_id"`
	Address     string `yaml:"address" json:"address"`
	Label       string `yaml:"label" json:"label,omitempty"`
	Coordinates LatLng `yaml:"coordinates" json:"coordinates"`
	IsMain      bool   `yaml:"is_main" json:"is_main,omitempty"`
}
