package models

import (
	"strings"
	"time"
)

// Room represents a physical teaching room. Rooms are never deleted;
// availability is a status flag.
type Room struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Building   string    `db:"building" json:"building"`
	Floor      int       `db:"floor" json:"floor"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Facilities string    `db:"facilities" json:"facilities"`
	Available  bool      `db:"available" json:"available"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// FacilityTags splits the stored facility list into individual tags.
func (r Room) FacilityTags() []string {
	if strings.TrimSpace(r.Facilities) == "" {
		return nil
	}
	parts := strings.Split(r.Facilities, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// RoomFilter captures filtering options for listing rooms.
type RoomFilter struct {
	Building  string
	Available *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
