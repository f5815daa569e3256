package backend

import (
	"encoding/json"
	"fmt"
)

const (
	unknownName    = "알 수 없는 병원"
	unknownAddress = "주소 정보 없음"
)

// Hospital is one search result. Optional fields are nil when the backend
// leaves them out.
type Hospital struct {
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	Phone           *string  `json:"phone,omitempty"`
	Website         *string  `json:"website,omitempty"`
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	PredictedRating *float64 `json:"predicted_rating,omitempty"`
}

// UnmarshalJSON accepts both the English field names and the column names of
// the public hospital dataset the backend is built on.
func (h *Hospital) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(keys ...string) *string {
		for _, k := range keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			var s *string
			if err := json.Unmarshal(v, &s); err == nil && s != nil {
				return s
			}
		}
		return nil
	}
	num := func(key string) *float64 {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		var f *float64
		if err := json.Unmarshal(v, &f); err != nil {
			return nil
		}
		return f
	}

	*h = Hospital{Name: unknownName, Address: unknownAddress}
	if s := str("요양기관명", "name"); s != nil {
		h.Name = *s
	}
	if s := str("주소", "address"); s != nil {
		h.Address = *s
	}
	h.Phone = str("전화번호", "phone")
	h.Website = str("병원홈페이지", "website")
	h.DistanceKm = num("distance_km")
	h.PredictedRating = num("predicted_rating")
	return nil
}

// Summary is a one-line description for logs and speech.
func (h Hospital) Summary() string {
	s := h.Name + " (" + h.Address + ")"
	if h.DistanceKm != nil {
		s += fmt.Sprintf(", %.1fkm", *h.DistanceKm)
	}
	if h.PredictedRating != nil {
		s += fmt.Sprintf(", ★%.1f", *h.PredictedRating)
	}
	return s
}
