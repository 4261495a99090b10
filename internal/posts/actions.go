package posts

import (
	"encoding/json"
	"fmt"
	"strings"

	"postengine/internal/models"
)

// Bulk action names accepted by ParseBulkAction.
const (
	ActionUnpublish = "unpublish"
	ActionFeature   = "feature"
	ActionUnfeature = "unfeature"
	ActionAccess    = "access"
	ActionAddTag    = "addTag"
)

// BulkAction is one of Unpublish, Feature, Unfeature, ChangeAccess or
// AddTags. The set is closed: only this package can add variants.
type BulkAction interface {
	// Name is the wire name of the action.
	Name() string
	validate() error
}

// Unpublish moves published posts back to draft.
type Unpublish struct{}

// Feature marks posts as featured.
type Feature struct{}

// Unfeature clears the featured flag.
type Unfeature struct{}

// ChangeAccess sets visibility. With VisibilityTiers, Tiers replaces the
// tier links of every matched post, keeping this order.
type ChangeAccess struct {
	Visibility models.Visibility
	Tiers      []string
}

// TagRef names a tag by id, or by name when it may not exist yet.
type TagRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// AddTags attaches tags to every matched post. Tags given only by name are
// created when missing.
type AddTags struct {
	Tags []TagRef
}

func (Unpublish) Name() string    { return ActionUnpublish }
func (Feature) Name() string      { return ActionFeature }
func (Unfeature) Name() string    { return ActionUnfeature }
func (ChangeAccess) Name() string { return ActionAccess }
func (AddTags) Name() string      { return ActionAddTag }

func (Unpublish) validate() error { return nil }
func (Feature) validate() error   { return nil }
func (Unfeature) validate() error { return nil }

func (a ChangeAccess) validate() error {
	if !a.Visibility.Valid() {
		return fmt.Errorf("%w: invalid visibility %q", ErrInvalidArgument, a.Visibility)
	}
	if a.Visibility != models.VisibilityTiers {
		return nil
	}
	if len(a.Tiers) == 0 {
		return fmt.Errorf("%w: tiers visibility needs at least one tier", ErrInvalidArgument)
	}
	for i, id := range a.Tiers {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: tier %d has no id", ErrInvalidArgument, i)
		}
	}
	return nil
}

func (a AddTags) validate() error {
	if len(a.Tags) == 0 {
		return fmt.Errorf("%w: no tags given", ErrInvalidArgument)
	}
	for i, t := range a.Tags {
		if strings.TrimSpace(t.ID) == "" && strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: tag %d needs an id or a name", ErrInvalidArgument, i)
		}
	}
	return nil
}

// ParseBulkAction builds and validates the action named name from its JSON
// meta payload. Unknown names fail with ErrUnsupportedAction and malformed
// payloads with ErrInvalidArgument.
func ParseBulkAction(name string, meta json.RawMessage) (BulkAction, error) {
	var action BulkAction
	switch name {
	case ActionUnpublish:
		action = Unpublish{}
	case ActionFeature:
		action = Feature{}
	case ActionUnfeature:
		action = Unfeature{}
	case ActionAccess:
		a, err := parseAccess(meta)
		if err != nil {
			return nil, err
		}
		action = a
	case ActionAddTag:
		a, err := parseAddTags(meta)
		if err != nil {
			return nil, err
		}
		action = a
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, name)
	}

	if err := action.validate(); err != nil {
		return nil, err
	}
	return action, nil
}

func parseAccess(meta json.RawMessage) (ChangeAccess, error) {
	var raw struct {
		Visibility string          `json:"visibility"`
		Tiers      json.RawMessage `json:"tiers"`
	}
	if err := decodeMeta(meta, &raw); err != nil {
		return ChangeAccess{}, err
	}
	a := ChangeAccess{Visibility: models.Visibility(raw.Visibility)}
	if a.Visibility != models.VisibilityTiers {
		return a, nil
	}

	entries, err := decodeList(raw.Tiers, "tiers")
	if err != nil {
		return ChangeAccess{}, err
	}
	for i, e := range entries {
		var tier struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(e, &tier); err != nil {
			return ChangeAccess{}, fmt.Errorf("%w: tier %d is not an object", ErrInvalidArgument, i)
		}
		a.Tiers = append(a.Tiers, tier.ID)
	}
	return a, nil
}

func parseAddTags(meta json.RawMessage) (AddTags, error) {
	var raw struct {
		Tags json.RawMessage `json:"tags"`
	}
	if err := decodeMeta(meta, &raw); err != nil {
		return AddTags{}, err
	}
	entries, err := decodeList(raw.Tags, "tags")
	if err != nil {
		return AddTags{}, err
	}

	var a AddTags
	for i, e := range entries {
		var ref TagRef
		if err := json.Unmarshal(e, &ref); err != nil {
			return AddTags{}, fmt.Errorf("%w: tag %d is not an object", ErrInvalidArgument, i)
		}
		a.Tags = append(a.Tags, ref)
	}
	return a, nil
}

func decodeMeta(meta json.RawMessage, v any) error {
	if len(meta) == 0 {
		return fmt.Errorf("%w: missing meta", ErrInvalidArgument)
	}
	if err := json.Unmarshal(meta, v); err != nil {
		return fmt.Errorf("%w: meta: %v", ErrInvalidArgument, err)
	}
	return nil
}

// decodeList splits a JSON array into its elements. Anything else,
// including null, is rejected.
func decodeList(raw json.RawMessage, field string) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidArgument, field)
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidArgument, field)
	}
	return entries, nil
}
