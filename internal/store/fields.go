// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package store

import "fmt"

// Field visibility levels, most to least permissive.
const (
	VisibilityPublic = "public"
	VisibilitySelf   = "self"
	VisibilityAdmin  = "admin"
)

// StaticField declares a custom user field and its visibility in
// configuration.
type StaticField struct {
	Name       string `koanf:"name"`
	Visibility string `koanf:"visibility"`
}

// StaticFieldSchema is a FieldSchema backed by configuration. Fields that
// are not declared at all are treated as admin-only: an undeclared field
// never leaks into a policy subject.
type StaticFieldSchema struct {
	visibility map[string]string
}

// NewStaticFieldSchema validates the declared fields and builds the schema.
func NewStaticFieldSchema(fields []StaticField) (*StaticFieldSchema, error) {
	vis := make(map[string]string, len(fields))
	for _, f := range fields {
		switch f.Visibility {
		case VisibilityPublic, VisibilitySelf, VisibilityAdmin:
		case "":
			f.Visibility = VisibilitySelf
		default:
			return nil, fmt.Errorf("field %q: invalid visibility %q", f.Name, f.Visibility)
		}
		if _, ok := vis[f.Name]; ok {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		vis[f.Name] = f.Visibility
	}

	return &StaticFieldSchema{visibility: vis}, nil
}

// FieldVisible reports whether the named field may be shown to the viewer.
func (s *StaticFieldSchema) FieldVisible(name string, viewer Viewer) bool {
	vis, ok := s.visibility[name]
	if !ok {
		vis = VisibilityAdmin
	}

	switch viewer {
	case ViewerAdmin:
		return true
	case ViewerSelf:
		return vis == VisibilityPublic || vis == VisibilitySelf
	default:
		return vis == VisibilityPublic
	}
}
