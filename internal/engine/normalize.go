package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// NormalizePrice coerces any of the price shapes the catalog emits into a
// single non-negative amount. The function is total: unparseable input
// degrades to 0 (free) instead of erroring, so a bad record never takes the
// listing down with it.
//
// Accepted shapes: numbers, numeric strings, currency-prefixed strings
// ("$12.99", "€5"), the literals "free"/"Free"/"0", and objects carrying
// amount/value/price/basePrice/discountedPrice fields or an is_free flag.
func NormalizePrice(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return clampPrice(v)
	case float32:
		return clampPrice(float64(v))
	case int:
		return clampPrice(float64(v))
	case int64:
		return clampPrice(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return clampPrice(f)
	case string:
		return parsePriceString(v)
	case json.RawMessage:
		return normalizeRawPrice(v)
	case []byte:
		return normalizeRawPrice(v)
	case map[string]any:
		return parsePriceObject(v)
	default:
		return 0
	}
}

func normalizeRawPrice(raw []byte) float64 {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Not valid JSON; treat the bytes as a bare string price.
		return parsePriceString(trimmed)
	}
	return NormalizePrice(decoded)
}

func parsePriceString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.EqualFold(s, "free") {
		return 0
	}
	// Strip currency symbols, thousands separators and surrounding noise.
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return clampPrice(f)
}

func parsePriceObject(obj map[string]any) float64 {
	if isFree, ok := obj["is_free"].(bool); ok && isFree {
		return 0
	}
	if isFree, ok := obj["isFree"].(bool); ok && isFree {
		return 0
	}
	// A discounted amount wins over the base amount when both are present.
	for _, key := range []string{"discountedPrice", "discounted_price", "amount", "value", "price", "basePrice", "base_price"} {
		if v, ok := obj[key]; ok {
			if p := NormalizePrice(v); p > 0 {
				return p
			}
		}
	}
	return 0
}

func clampPrice(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// NormalizeItem converts a raw catalog record into the canonical Item shape.
// Missing collections default to empty slices and a missing rating to the
// zero value, so downstream code never deals with nils.
func NormalizeItem(raw RawItem) Item {
	item := Item{
		ID:          raw.ID,
		Name:        firstNonEmpty(raw.Name, raw.Title),
		Description: raw.Description,
		Category:    raw.Category,
		Categories:  raw.Categories,
		Tags:        raw.Tags,
		Features:    raw.Features,
		UsersCount:  raw.UsersCount,
		Views:       raw.Views,
		Featured:    raw.Featured,
		Image:       firstNonEmpty(raw.Image, raw.ImageURL),
		CreatedAt:   raw.CreatedAt,
	}
	if item.Category == "" && len(raw.Categories) > 0 {
		item.Category = raw.Categories[0]
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.Features == nil {
		item.Features = []string{}
	}
	if raw.Creator != nil {
		item.Creator = *raw.Creator
	}
	if raw.Rating != nil {
		item.Rating = *raw.Rating
		if item.Rating.Average < 0 {
			item.Rating.Average = 0
		}
		if item.Rating.Count < 0 {
			item.Rating.Count = 0
		}
	}
	price := normalizeRawPrice(raw.Price)
	if price == 0 && len(raw.PriceDetails) > 0 {
		price = normalizeRawPrice(raw.PriceDetails)
	}
	item.Price = price
	return item
}

// NormalizeItems maps a raw page into canonical items, preserving order.
func NormalizeItems(raws []RawItem) []Item {
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		items = append(items, NormalizeItem(raw))
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
