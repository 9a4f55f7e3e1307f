package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"ArticlePublisher/internal/domain"
)

// Schema history:
//
//	v0  unversioned flat map {id: {path, title, section, publish_at,
//	    recorded_at, discord: null | {forum, announce}}}
//	v1  {schema_version: 1, records: {id: <v0 entry with discord normalised
//	    to {forum, announce}>}}
//	v2  {schema_version: 2, records: {id: domain.Record}}
//
// Every upgrade has a matching downgrade so an older deployment can read a
// file written by this one.

type rawDoc = map[string]any

type step struct {
	name     string
	up       func(rawDoc) (rawDoc, error)
	down     func(rawDoc) (rawDoc, error)
	validate func(rawDoc) error
}

// steps[v] migrates version v to v+1. validate checks the v+1 shape.
var steps = []step{
	{name: "wrap-legacy-map", up: upgradeV0, down: downgradeV1, validate: validateV1},
	{name: "flatten-discord", up: upgradeV1, down: downgradeV2, validate: validateV2},
}

func init() {
	if len(steps) != domain.SchemaVersion {
		panic("storage: migration chain does not reach domain.SchemaVersion")
	}
}

// Decode parses a persisted document of any supported version and returns it
// in the current shape. MigratedFrom carries the version found on disk.
func Decode(data []byte) (*domain.StateDocument, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.NewStateDocument(), nil
	}

	var raw rawDoc
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.SchemaError{Version: -1, Err: fmt.Errorf("%w: %v", domain.ErrStateCorruption, err)}
	}
	if raw == nil {
		return nil, &domain.SchemaError{Version: -1, Err: fmt.Errorf("%w: document is null", domain.ErrStateCorruption)}
	}

	current, from, err := Upgrade(raw)
	if err != nil {
		return nil, err
	}

	normalized, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("re-encode migrated state: %w", err)
	}
	doc := domain.NewStateDocument()
	if err := json.Unmarshal(normalized, doc); err != nil {
		return nil, &domain.SchemaError{Version: domain.SchemaVersion, Err: fmt.Errorf("%w: %v", domain.ErrStateCorruption, err)}
	}
	if doc.Records == nil {
		doc.Records = map[string]domain.Record{}
	}
	doc.MigratedFrom = from
	return doc, nil
}

// Encode renders doc at the current version with stable key order.
func Encode(doc *domain.StateDocument) ([]byte, error) {
	out := *doc
	out.SchemaVersion = domain.SchemaVersion
	if out.Records == nil {
		out.Records = map[string]domain.Record{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeVersion renders doc in the shape of an older (or the current) version.
func EncodeVersion(doc *domain.StateDocument, target int) ([]byte, error) {
	if target < 0 || target > domain.SchemaVersion {
		return nil, &domain.SchemaError{Version: target, Err: domain.ErrUnknownSchemaVersion}
	}
	current, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	if target == domain.SchemaVersion {
		return current, nil
	}

	var raw rawDoc
	if err := json.Unmarshal(current, &raw); err != nil {
		return nil, fmt.Errorf("decode current state: %w", err)
	}
	lowered, err := Downgrade(raw, target)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(lowered, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state v%d: %w", target, err)
	}
	return append(data, '\n'), nil
}

// Upgrade applies the migration chain until raw reaches the current version.
// It returns the migrated document and the version it started from.
func Upgrade(raw rawDoc) (rawDoc, int, error) {
	version, err := detectVersion(raw)
	if err != nil {
		return nil, 0, err
	}
	if version > domain.SchemaVersion {
		return nil, version, &domain.SchemaError{
			Version: version,
			Err:     fmt.Errorf("%w: newest supported is v%d", domain.ErrUnknownSchemaVersion, domain.SchemaVersion),
		}
	}
	if err := validateVersion(version, raw); err != nil {
		return nil, version, &domain.SchemaError{Version: version, Step: "validate", Err: err}
	}
	if version == domain.SchemaVersion {
		return raw, version, nil
	}

	from := version
	doc := raw
	for v := version; v < domain.SchemaVersion; v++ {
		s := steps[v]
		next, err := s.up(doc)
		if err != nil {
			return nil, from, &domain.SchemaError{Version: v, Step: s.name, Err: err}
		}
		if err := s.validate(next); err != nil {
			return nil, from, &domain.SchemaError{Version: v + 1, Step: s.name, Err: err}
		}
		doc = next
	}
	return doc, from, nil
}

// Downgrade walks the chain backwards from the current version to target.
func Downgrade(raw rawDoc, target int) (rawDoc, error) {
	version, err := detectVersion(raw)
	if err != nil {
		return nil, err
	}
	if target < 0 || target > version {
		return nil, &domain.SchemaError{Version: target, Err: domain.ErrUnknownSchemaVersion}
	}
	doc := raw
	for v := version; v > target; v-- {
		s := steps[v-1]
		prev, err := s.down(doc)
		if err != nil {
			return nil, &domain.SchemaError{Version: v, Step: s.name + " (down)", Err: err}
		}
		doc = prev
	}
	return doc, nil
}

func detectVersion(raw rawDoc) (int, error) {
	v, ok := raw["schema_version"]
	if !ok {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 1 {
		return 0, &domain.SchemaError{Version: -1, Err: fmt.Errorf("%w: schema_version %v is not a positive integer", domain.ErrStateCorruption, v)}
	}
	return int(f), nil
}

func validateVersion(version int, doc rawDoc) error {
	if version == 0 {
		return validateV0(doc)
	}
	return steps[version-1].validate(doc)
}

func validateV0(legacy rawDoc) error {
	for id, value := range legacy {
		if _, ok := value.(map[string]any); !ok {
			return corrupt("legacy entry %q is not an object", id)
		}
	}
	return nil
}

func upgradeV0(legacy rawDoc) (rawDoc, error) {
	records := rawDoc{}
	for id, value := range legacy {
		entry, ok := value.(map[string]any)
		if !ok {
			return nil, corrupt("legacy entry %q is not an object", id)
		}
		out := copyMap(entry)
		discord, ok := entry["discord"].(map[string]any)
		if !ok {
			out["discord"] = rawDoc{"forum": nil, "announce": nil}
		} else {
			d := copyMap(discord)
			if _, ok := d["forum"]; !ok {
				d["forum"] = nil
			}
			if _, ok := d["announce"]; !ok {
				d["announce"] = nil
			}
			out["discord"] = d
		}
		records[id] = out
	}
	return rawDoc{"schema_version": float64(1), "records": records}, nil
}

func downgradeV1(doc rawDoc) (rawDoc, error) {
	records, ok := doc["records"].(map[string]any)
	if !ok {
		return nil, corrupt("records is not an object")
	}
	legacy := rawDoc{}
	for id, value := range records {
		entry, ok := value.(map[string]any)
		if !ok {
			return nil, corrupt("record %q is not an object", id)
		}
		legacy[id] = copyMap(entry)
	}
	return legacy, nil
}

func validateV1(doc rawDoc) error {
	if v, _ := doc["schema_version"].(float64); v != 1 {
		return corrupt("expected schema_version 1")
	}
	records, ok := doc["records"].(map[string]any)
	if !ok {
		return corrupt("records is not an object")
	}
	for id, value := range records {
		entry, ok := value.(map[string]any)
		if !ok {
			return corrupt("record %q is not an object", id)
		}
		discord, ok := entry["discord"].(map[string]any)
		if !ok {
			return corrupt("record %q has no discord object", id)
		}
		for _, key := range []string{"forum", "announce"} {
			v, present := discord[key]
			if !present {
				return corrupt("record %q is missing discord.%s", id, key)
			}
			if v != nil {
				if _, ok := v.(map[string]any); !ok {
					return corrupt("record %q discord.%s is not an object", id, key)
				}
			}
		}
	}
	return nil
}

func upgradeV1(doc rawDoc) (rawDoc, error) {
	records, _ := doc["records"].(map[string]any)
	out := rawDoc{}
	for id, value := range records {
		entry, _ := value.(map[string]any)
		rec := rawDoc{
			"identity":       id,
			"schema_version": float64(2),
		}
		for _, key := range []string{"path", "title", "section", "publish_at"} {
			if s, ok := stringish(entry[key]); ok && s != "" {
				rec[key] = s
			}
		}
		if s, ok := stringish(entry["recorded_at"]); ok && s != "" {
			rec["published_at"] = s
		}

		discord, _ := entry["discord"].(map[string]any)
		if forum, ok := discord["forum"].(map[string]any); ok {
			if err := moveString(forum, "thread_id", rec, "thread_id"); err != nil {
				return nil, fmt.Errorf("record %q: %w", id, err)
			}
			if err := moveString(forum, "starter_message_id", rec, "starter_message_id"); err != nil {
				return nil, fmt.Errorf("record %q: %w", id, err)
			}
			if err := moveString(forum, "posted_at", rec, "thread_posted_at"); err != nil {
				return nil, fmt.Errorf("record %q: %w", id, err)
			}
		}
		if announce, ok := discord["announce"].(map[string]any); ok {
			if err := moveString(announce, "message_id", rec, "announcement_message_id"); err != nil {
				return nil, fmt.Errorf("record %q: %w", id, err)
			}
			if err := moveString(announce, "posted_at", rec, "announced_at"); err != nil {
				return nil, fmt.Errorf("record %q: %w", id, err)
			}
		}
		if last, ok := entry["discord_last_action"].(map[string]any); ok {
			rec["last_action"] = copyMap(last)
		}
		out[id] = rec
	}
	return rawDoc{"schema_version": float64(2), "records": out}, nil
}

func downgradeV2(doc rawDoc) (rawDoc, error) {
	records, ok := doc["records"].(map[string]any)
	if !ok {
		return nil, corrupt("records is not an object")
	}
	out := rawDoc{}
	for id, value := range records {
		rec, ok := value.(map[string]any)
		if !ok {
			return nil, corrupt("record %q is not an object", id)
		}
		entry := rawDoc{}
		for _, key := range []string{"path", "title", "section", "publish_at"} {
			if v, ok := rec[key]; ok {
				entry[key] = v
			}
		}
		if v, ok := rec["published_at"]; ok {
			entry["recorded_at"] = v
		}

		var forum, announce any
		if threadID, _ := rec["thread_id"].(string); threadID != "" {
			f := rawDoc{"thread_id": threadID}
			copyIfPresent(rec, "starter_message_id", f, "starter_message_id")
			copyIfPresent(rec, "thread_posted_at", f, "posted_at")
			forum = f
		}
		if messageID, _ := rec["announcement_message_id"].(string); messageID != "" {
			a := rawDoc{"message_id": messageID}
			copyIfPresent(rec, "announced_at", a, "posted_at")
			announce = a
		}
		entry["discord"] = rawDoc{"forum": forum, "announce": announce}
		if last, ok := rec["last_action"].(map[string]any); ok {
			entry["discord_last_action"] = copyMap(last)
		}
		out[id] = entry
	}
	return rawDoc{"schema_version": float64(1), "records": out}, nil
}

func validateV2(doc rawDoc) error {
	if v, _ := doc["schema_version"].(float64); v != 2 {
		return corrupt("expected schema_version 2")
	}
	records, ok := doc["records"].(map[string]any)
	if !ok {
		return corrupt("records is not an object")
	}
	for id, value := range records {
		rec, ok := value.(map[string]any)
		if !ok {
			return corrupt("record %q is not an object", id)
		}
		identity, _ := rec["identity"].(string)
		if identity == "" || identity != id {
			return corrupt("record %q has identity %q", id, identity)
		}
		if _, ok := rec["schema_version"].(float64); !ok {
			return corrupt("record %q has no schema_version", id)
		}
		for _, key := range []string{"thread_id", "starter_message_id", "announcement_message_id"} {
			if v, present := rec[key]; present {
				if _, ok := v.(string); !ok {
					return corrupt("record %q field %s is not a string", id, key)
				}
			}
		}
		for _, key := range []string{"published_at", "thread_posted_at", "announced_at"} {
			v, present := rec[key]
			if !present || v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return corrupt("record %q field %s is not a timestamp", id, key)
			}
			if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
				return corrupt("record %q field %s: %v", id, key, err)
			}
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrStateCorruption}, args...)...)
}

func copyMap(in map[string]any) rawDoc {
	out := make(rawDoc, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyIfPresent(src rawDoc, from string, dst rawDoc, to string) {
	if v, ok := src[from]; ok && v != nil {
		dst[to] = v
	}
}

func moveString(src map[string]any, from string, dst rawDoc, to string) error {
	v, ok := src[from]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return corrupt("%s is not a string", from)
	}
	if s != "" {
		dst[to] = s
	}
	return nil
}

func stringish(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64, bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
