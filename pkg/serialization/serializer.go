// Package serialization resolves the serializer a client uses for resource bodies.
//
// A configuration selects exactly one of: a caller-supplied RawSerializer, a set
// of Options for the built-in JSON serializer, or the default. Resolve always
// returns an EffectiveSerializer wrapping exactly one RawSerializer, so the rest
// of the client sees a single stream contract regardless of the source.
package serialization

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/polisai/cosmosclient/pkg/domain"
)

// RawSerializer is the capability a custom serializer must provide.
type RawSerializer interface {
	// FromStream decodes the content of r into v.
	FromStream(r io.Reader, v any) error
	// ToStream encodes v. The returned reader must be non-nil on success.
	ToStream(v any) (io.Reader, error)
}

var (
	defaultOnce       sync.Once
	defaultSerializer *EffectiveSerializer
)

// DefaultSerializer returns the process-wide wrapped default serializer.
// Callers may compare against it by identity.
func DefaultSerializer() *EffectiveSerializer {
	defaultOnce.Do(func() {
		defaultSerializer = &EffectiveSerializer{inner: NewJSONSerializer(Options{})}
	})
	return defaultSerializer
}

// EffectiveSerializer adapts a RawSerializer to the client's stream contract.
type EffectiveSerializer struct {
	inner RawSerializer
}

// Wrap wraps raw in a new EffectiveSerializer.
func Wrap(raw RawSerializer) (*EffectiveSerializer, error) {
	if raw == nil {
		return nil, domain.NewConfigError(domain.KindInvalidArgument, "Serializer", "serializer is nil")
	}
	return &EffectiveSerializer{inner: raw}, nil
}

// Inner returns the wrapped serializer.
func (s *EffectiveSerializer) Inner() RawSerializer {
	return s.inner
}

// ToStream encodes v through the wrapped serializer. An io.Reader passed as v is
// returned untouched so pre-encoded payloads can flow through unchanged.
func (s *EffectiveSerializer) ToStream(v any) (io.Reader, error) {
	if r, ok := v.(io.Reader); ok {
		return r, nil
	}
	r, err := s.inner.ToStream(v)
	if err != nil {
		return nil, fmt.Errorf("serialize %T: %w", v, err)
	}
	if r == nil {
		return nil, errors.New("serializer returned a nil stream")
	}
	return r, nil
}

// FromStream decodes r into v through the wrapped serializer, closing r when it
// is an io.Closer.
func (s *EffectiveSerializer) FromStream(r io.Reader, v any) error {
	if r == nil {
		return errors.New("cannot deserialize a nil stream")
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	if err := s.inner.FromStream(r, v); err != nil {
		return fmt.Errorf("deserialize %T: %w", v, err)
	}
	return nil
}

type choiceKind int

const (
	choiceDefault choiceKind = iota
	choiceCustom
	choiceOptions
)

// Choice is the serializer selection of a configuration: Default, Custom, or Options.
// The zero value selects the default serializer.
type Choice struct {
	kind   choiceKind
	custom RawSerializer
	opts   Options
}

// Default selects the built-in serializer with default options.
func Default() Choice {
	return Choice{}
}

// Custom selects a caller-supplied serializer.
func Custom(s RawSerializer) Choice {
	return Choice{kind: choiceCustom, custom: s}
}

// WithOptions selects the built-in serializer configured by opts.
func WithOptions(opts Options) Choice {
	return Choice{kind: choiceOptions, opts: opts}
}

// IsDefault reports whether no serializer or options were chosen.
func (c Choice) IsDefault() bool { return c.kind == choiceDefault }

// Custom returns the custom serializer, if that is the choice.
func (c Choice) Custom() (RawSerializer, bool) {
	return c.custom, c.kind == choiceCustom
}

// Options returns the serializer options, if that is the choice.
func (c Choice) Options() (Options, bool) {
	return c.opts, c.kind == choiceOptions
}

func (c Choice) String() string {
	switch c.kind {
	case choiceCustom:
		return fmt.Sprintf("custom(%T)", c.custom)
	case choiceOptions:
		return fmt.Sprintf("options(%+v)", c.opts)
	default:
		return "default"
	}
}

// Resolve turns a choice into the serializer the client will use.
func Resolve(c Choice) (*EffectiveSerializer, error) {
	switch c.kind {
	case choiceCustom:
		return Wrap(c.custom)
	case choiceOptions:
		return &EffectiveSerializer{inner: NewJSONSerializer(c.opts)}, nil
	default:
		return DefaultSerializer(), nil
	}
}

// ResolvePair resolves the two-field form used by loosely typed callers. Setting
// both fields is rejected.
func ResolvePair(custom RawSerializer, opts *Options) (*EffectiveSerializer, error) {
	switch {
	case custom != nil && opts != nil:
		return nil, domain.NewConfigError(domain.KindConflictingSerializer, "Serializer",
			"a custom serializer cannot be combined with serializer options")
	case custom != nil:
		return Resolve(Custom(custom))
	case opts != nil:
		return Resolve(WithOptions(*opts))
	default:
		return Resolve(Default())
	}
}
