package config

import (
	"regexp"

	"github.com/openr-go/openr/pkg/areatable"
	"github.com/openr-go/openr/pkg/serrors"
)

// BuildAreaTable compiles every area's interface regexes and builds
// the areatable.Table used across the agent's components.
func (c *Config) BuildAreaTable() (*areatable.Table, error) {
	areas := make([]areatable.Config, 0, len(c.Areas))
	for _, a := range c.Areas {
		regexes, err := compileAll(a.AreaID, "interface regex", a.InterfaceRegexes)
		if err != nil {
			return nil, err
		}
		redistRegexes, err := compileAll(a.AreaID, "redistribute regex", a.RedistributeRegexes)
		if err != nil {
			return nil, err
		}
		areas = append(areas, areatable.Config{
			AreaID:              a.AreaID,
			InterfaceRegexes:    regexes,
			RedistributeRegexes: redistRegexes,
			KeyPrefixes:         a.KeyPrefixes,
		})
	}
	return areatable.New(areas)
}

func compileAll(areaID, kind string, patterns []string) ([]*regexp.Regexp, error) {
	regexes := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, serrors.Wrap("compile "+kind, err, "area", areaID, "pattern", pattern)
		}
		regexes = append(regexes, re)
	}
	return regexes, nil
}
