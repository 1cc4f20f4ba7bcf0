package models

// DeviceFile is one entry of a device directory listing.
type DeviceFile struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"isDirectory"`
}
