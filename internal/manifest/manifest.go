// Package manifest defines the tooth.json package manifest and the
// validation/migration boundary between schema generations.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

const (
	// FormatVersion is the current manifest schema generation.
	FormatVersion = 3

	// FormatUUID identifies the manifest convention. It doubles as the
	// probe marker used by code search and by Authentic: files that do
	// not contain it are not manifests of this index, whatever their
	// name says.
	FormatUUID = "289f771f-2c9a-4d73-9f3f-8492495a924d"

	// Filename is the fixed manifest file name at a repository root.
	Filename = "tooth.json"
)

var (
	tagPattern   = regexp.MustCompile(`^[a-z0-9-]+(:[a-z0-9-]+)?$`)
	labelPattern = regexp.MustCompile(`^[a-z0-9_]+(/[a-z0-9_]+)?$`)
)

// Info holds the package's presentation fields.
type Info struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" validate:"dive,pkgtag"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
}

// Variant declares a platform-specific flavor of the package.
type Variant struct {
	Label        string            `json:"label,omitempty" validate:"omitempty,variantlabel"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Manifest is the current-generation tooth.json schema. A Manifest value
// that came out of Parse always satisfies this schema; older generations
// only enter the pipeline through the Reconciler's migration bridge.
type Manifest struct {
	FormatVersion int               `json:"format_version" validate:"eq=3"`
	FormatUUID    string            `json:"format_uuid" validate:"eq=289f771f-2c9a-4d73-9f3f-8492495a924d"`
	Tooth         string            `json:"tooth" validate:"required"`
	Version       string            `json:"version" validate:"required,strictsemver"`
	Info          Info              `json:"info,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	Variants      []Variant         `json:"variants,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	must(v.RegisterValidation("strictsemver", func(fl validator.FieldLevel) bool {
		_, err := semver.StrictNewVersion(fl.Field().String())
		return err == nil
	}))
	must(v.RegisterValidation("pkgtag", func(fl validator.FieldLevel) bool {
		return tagPattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("variantlabel", func(fl validator.FieldLevel) bool {
		return labelPattern.MatchString(fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Authentic reports whether raw content carries the probe marker. Code
// search matches are a superset of real manifests; this gate runs before
// any parsing is attempted.
func Authentic(raw []byte, probe string) bool {
	return bytes.Contains(raw, []byte(probe))
}

// Parse decodes and validates raw bytes against the current schema.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}
	return &m, nil
}

// Encode serializes a manifest the way per-version artifacts are stored:
// two-space indent, trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
