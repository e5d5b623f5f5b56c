package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule says how to settle one market from an oracle price: Yes when the
// price of Symbol is at or above TargetPrice, No otherwise.
type Rule struct {
	MarketID    uint64  `yaml:"market_id"`
	Symbol      string  `yaml:"symbol"`
	TargetPrice float64 `yaml:"target_price"`
}

// Rules is a set of resolution rules keyed by market id.
type Rules map[uint64]Rule

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rules file of the form
//
//	rules:
//	  - market_id: 1
//	    symbol: BTC/USD
//	    target_price: 100000
//
// A missing path yields an empty rule set.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Rules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rules document.
func ParseRules(data []byte) (Rules, error) {
	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pipeline: parse rules: %w", err)
	}

	rules := make(Rules, len(f.Rules))
	var errs []error
	for i, r := range f.Rules {
		r.Symbol = strings.TrimSpace(r.Symbol)
		switch {
		case r.Symbol == "":
			errs = append(errs, fmt.Errorf("rule %d: symbol is required", i))
			continue
		case r.TargetPrice <= 0:
			errs = append(errs, fmt.Errorf("rule %d: target_price must be positive", i))
			continue
		}
		if _, dup := rules[r.MarketID]; dup {
			errs = append(errs, fmt.Errorf("rule %d: duplicate market_id %d", i, r.MarketID))
			continue
		}
		rules[r.MarketID] = r
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pipeline: invalid rules: %w", errors.Join(errs...))
	}
	return rules, nil
}

// MarketIDs returns the ids with a rule, ascending.
func (r Rules) MarketIDs() []uint64 {
	ids := make([]uint64, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
