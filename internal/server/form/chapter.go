package form

import (
	"fmt"
	"strconv"
)

// Chapter is one entry of a course's chapter list. Video holds the URL of
// the uploaded chapter video.
type Chapter struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Video       string  `json:"video"`
}

func (c Chapter) toMap() map[string]any {
	return map[string]any{
		"title":       c.Title,
		"description": c.Description,
		"duration":    c.Duration,
		"video":       c.Video,
	}
}

// chaptersFromValue decodes the chapter list of a stored record. Entries
// that are not objects are skipped.
func chaptersFromValue(v any) []Chapter {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Chapter, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Chapter{
			Title:       asString(m["title"]),
			Description: asString(m["description"]),
			Duration:    asFloat(m["duration"]),
			Video:       asString(m["video"]),
		})
	}
	return out
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}
