package web

import (
	"encoding/json"
	"fmt"

	"github.com/sweeney/pulse-meter/internal/attr"
)

// AttrsJSON is the JSON representation of the attribute table.
type AttrsJSON struct {
	Attributes []AttrJSON `json:"attributes"`
}

// AttrJSON is one attribute with its permission bits and current value.
type AttrJSON struct {
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	Writable bool   `json:"writable"`
	Value    string `json:"value"`
}

func formatAttrs(set *attr.Set) []byte {
	var aj AttrsJSON
	for _, name := range set.Names() {
		a, _ := set.Lookup(name)
		v, err := set.Read(name)
		if err != nil {
			continue
		}
		aj.Attributes = append(aj.Attributes, AttrJSON{
			Name:     name,
			Mode:     fmt.Sprintf("%04o", uint32(a.Mode.Perm())),
			Writable: a.Writable(),
			Value:    v,
		})
	}

	data, _ := json.MarshalIndent(aj, "", "  ")
	return data
}
