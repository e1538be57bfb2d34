package dto

import "passionautos/internal/chat"

// Vehicle is the public projection of a listing shown inside chats and the catalog.
type Vehicle struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"owner_id"`
	Title   string   `json:"title"`
	Images  []string `json:"images"`
}

// VehicleList is the catalog payload.
type VehicleList struct {
	Items []Vehicle `json:"items"`
}

// VehiclePhotoUploadResult reports the stored photo set after an upload.
type VehiclePhotoUploadResult struct {
	VehicleID string   `json:"vehicle_id"`
	Images    []string `json:"images"`
}

func NewVehicle(v chat.VehicleSummary) Vehicle {
	return Vehicle{
		ID:      v.ID,
		OwnerID: v.OwnerID,
		Title:   v.Title,
		Images:  append([]string(nil), v.Images...),
	}
}

func NewVehicleList(items []chat.VehicleSummary) VehicleList {
	out := VehicleList{Items: make([]Vehicle, 0, len(items))}
	for _, v := range items {
		out.Items = append(out.Items, NewVehicle(v))
	}
	return out
}
