package dispatch

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Factory builds an *Error from a catalog entry. Message placeholders of the
// form {key} are filled from data.
type Factory func(data map[string]any) *Error

// Catalog turns a nested name -> message tree into error constructors.
//
// Nested groups produce dotted names:
//
//	cat, _ := dispatch.NewCatalog(map[string]any{
//	    "user": map[string]any{
//	        "NotFound": "user {id} not found",
//	    },
//	})
//	err := cat.New("user.NotFound", map[string]any{"id": "42"})
//	// err.Name == "user.NotFound", err.Message == "user 42 not found"
type Catalog struct {
	messages map[string]string
}

// NewCatalog flattens tree. Leaves must be strings and groups must be maps
// with string keys.
func NewCatalog(tree map[string]any) (*Catalog, error) {
	c := &Catalog{messages: make(map[string]string)}
	if err := c.add("", tree); err != nil {
		return nil, err
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on error.
func MustCatalog(tree map[string]any) *Catalog {
	c, err := NewCatalog(tree)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog decodes a YAML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var tree map[string]any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(tree)
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) add(prefix string, tree map[string]any) error {
	for key, v := range tree {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("catalog: empty name under %q", prefix)
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}

		switch v := v.(type) {
		case string:
			c.messages[name] = v
		case map[string]any:
			if err := c.add(name, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("catalog: %s: unsupported value of type %T", name, v)
		}
	}
	return nil
}

// Has reports whether name is defined.
func (c *Catalog) Has(name string) bool {
	_, ok := c.messages[name]
	return ok
}

// Names returns every defined name, sorted.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.messages))
}

// Factory returns the constructor for name.
func (c *Catalog) Factory(name string) (Factory, bool) {
	msg, ok := c.messages[name]
	if !ok {
		return nil, false
	}
	return func(data map[string]any) *Error {
		return &Error{
			Name:    name,
			Message: interpolate(msg, data),
			Data:    maps.Clone(data),
		}
	}, true
}

// New builds the error registered under name. Unknown names still produce an
// error carrying that name, with a generic message.
func (c *Catalog) New(name string, data map[string]any) *Error {
	if f, ok := c.Factory(name); ok {
		return f(data)
	}
	return &Error{Name: name, Message: "unknown error", Data: maps.Clone(data)}
}

// Merge returns a catalog holding the entries of c and other. Entries in other
// win on conflict.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{messages: maps.Clone(c.messages)}
	if other != nil {
		maps.Copy(out.messages, other.messages)
	}
	return out
}

func interpolate(msg string, data map[string]any) string {
	if len(data) == 0 || !strings.Contains(msg, "{") {
		return msg
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
