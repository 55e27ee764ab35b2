package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CatalogSuite struct {
	suite.Suite
	cat *Catalog
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	var err error
	s.cat, err = NewCatalog(map[string]any{
		"Timeout": "timed out after {seconds}s",
		"user": map[string]any{
			"NotFound": "user {id} not found",
			"billing": map[string]any{
				"Declined": "card declined",
			},
		},
	})
	s.Require().NoError(err)
}

func (s *CatalogSuite) TestFlattensNames() {
	s.Equal([]string{"Timeout", "user.NotFound", "user.billing.Declined"}, s.cat.Names())
	s.True(s.cat.Has("user.billing.Declined"))
	s.False(s.cat.Has("user"))
}

func (s *CatalogSuite) TestNewInterpolates() {
	err := s.cat.New("user.NotFound", map[string]any{"id": 7})

	s.Equal("user.NotFound", err.Name)
	s.Equal("user 7 not found", err.Message)
	s.Equal(map[string]any{"id": 7}, err.Data)
}

func (s *CatalogSuite) TestMissingPlaceholderLeftAsIs() {
	err := s.cat.New("Timeout", nil)
	s.Equal("timed out after {seconds}s", err.Message)
}

func (s *CatalogSuite) TestFactoryErrorsWorkWithErrorsIs() {
	notFound, ok := s.cat.Factory("user.NotFound")
	s.Require().True(ok)

	err := notFound(map[string]any{"id": "a"})
	s.True(errors.Is(err, &Error{Name: "user.NotFound"}))

	_, ok = s.cat.Factory("user.Missing")
	s.False(ok)
}

func (s *CatalogSuite) TestFactoryCopiesData() {
	data := map[string]any{"id": 1}
	err := s.cat.New("user.NotFound", data)
	data["id"] = 2

	s.Equal(1, err.Data["id"])
}

func (s *CatalogSuite) TestUnknownName() {
	err := s.cat.New("nope", nil)

	s.Equal("nope", err.Name)
	s.Equal("unknown error", err.Message)
}

func (s *CatalogSuite) TestMerge() {
	other := MustCatalog(map[string]any{
		"Timeout": "slow",
		"Extra":   "extra",
	})

	merged := s.cat.Merge(other)

	s.Equal("slow", merged.New("Timeout", nil).Message)
	s.True(merged.Has("Extra"))
	s.True(merged.Has("user.NotFound"))
	s.Equal("timed out after {seconds}s", s.cat.New("Timeout", nil).Message)
	s.Equal(s.cat.Names(), s.cat.Merge(nil).Names())
}

func (s *CatalogSuite) TestRejectsBadTrees() {
	_, err := NewCatalog(map[string]any{"Count": 3})
	s.ErrorContains(err, "Count")

	_, err = NewCatalog(map[string]any{"group": map[string]any{" ": "x"}})
	s.ErrorContains(err, "empty name")

	s.Panics(func() { MustCatalog(map[string]any{"x": []string{"a"}}) })
}

func (s *CatalogSuite) TestLoadCatalogYAML() {
	cat, err := LoadCatalog(strings.NewReader(`
order:
  Missing: "order {id} missing"
  payment:
    Failed: payment failed
`))
	s.Require().NoError(err)

	s.Equal([]string{"order.Missing", "order.payment.Failed"}, cat.Names())
	s.Equal("order 9 missing", cat.New("order.Missing", map[string]any{"id": 9}).Message)
}

func (s *CatalogSuite) TestLoadCatalogEmpty() {
	cat, err := LoadCatalog(strings.NewReader(""))
	s.Require().NoError(err)
	s.Empty(cat.Names())
}

func (s *CatalogSuite) TestLoadCatalogInvalid() {
	_, err := LoadCatalog(strings.NewReader("a: [unterminated"))
	s.ErrorContains(err, "decode catalog")
}

func (s *CatalogSuite) TestLoadCatalogFile() {
	path := filepath.Join(s.T().TempDir(), "errors.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("Gone: resource gone\n"), 0o600))

	cat, err := LoadCatalogFile(path)
	s.Require().NoError(err)
	s.True(cat.Has("Gone"))

	_, err = LoadCatalogFile(filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.ErrorIs(err, os.ErrNotExist)
}
