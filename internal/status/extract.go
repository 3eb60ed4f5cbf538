package status

import (
	"encoding/json"
	"strings"

	"github.com/parcelbay/reconbox/internal/models"
)

// Ответы перевозчиков меняют форму от релиза к релизу, поэтому статус ищем
// упорядоченным списком проб: побеждает первая совпавшая, остальные совпадения
// сохраняются как кандидаты для разбора конфликтов.
type strategy struct {
	path  string
	probe func(root map[string]any) (string, bool)
}

var strategies = []strategy{
	{
		path: "tracking_data.shipment_track[0].current_status",
		probe: func(root map[string]any) (string, bool) {
			obj, ok := shipmentTrackFirst(root)
			if !ok {
				return "", false
			}
			return stringField(obj, "current_status")
		},
	},
	{
		path: "tracking_data.current_status",
		probe: func(root map[string]any) (string, bool) {
			v, ok := dig(root, "tracking_data", "current_status")
			if !ok {
				return "", false
			}
			s, ok := v.(string)
			return s, ok
		},
	},
	{
		path: "current_status",
		probe: func(root map[string]any) (string, bool) {
			return stringField(root, "current_status")
		},
	},
	{
		// Легаси-поле со времён первого интегратора.
		path: "status",
		probe: func(root map[string]any) (string, bool) {
			return stringField(root, "status")
		},
	},
}

// Extract ищет статусные поля в произвольном JSON перевозчика.
// false означает "в этом цикле новой информации нет", это не ошибка.
func Extract(raw json.RawMessage) (models.ExtractedStatus, bool) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return models.ExtractedStatus{}, false
	}

	var out models.ExtractedStatus
	for _, s := range strategies {
		v, ok := s.probe(root)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		out.Candidates = append(out.Candidates, models.StatusCandidate{Path: s.path, Value: v})
		if out.RawStatus == "" {
			out.RawStatus = v
			out.MatchedPath = s.path
		}
	}
	if out.RawStatus == "" {
		return models.ExtractedStatus{}, false
	}

	out.StatusType = firstString(root,
		[]string{"tracking_data", "shipment_track", "*", "current_status_type"},
		[]string{"tracking_data", "shipment_status_type"},
		[]string{"status_type"},
	)
	out.Location = firstString(root,
		[]string{"tracking_data", "shipment_track", "*", "current_status_location"},
		[]string{"tracking_data", "shipment_track", "*", "destination"},
		[]string{"location"},
	)
	// Время оставляем строкой: форматы у перевозчиков разные,
	// валидацией занимается применяющая сторона.
	out.OccurredAt = firstString(root,
		[]string{"tracking_data", "shipment_track", "*", "current_status_time"},
		[]string{"tracking_data", "status_time"},
		[]string{"status_date"},
	)

	return out, true
}

func shipmentTrackFirst(root map[string]any) (map[string]any, bool) {
	v, ok := dig(root, "tracking_data", "shipment_track")
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	obj, ok := arr[0].(map[string]any)
	return obj, ok
}

// dig идёт по вложенным объектам; элемент "*" означает первый элемент массива.
func dig(root map[string]any, keys ...string) (any, bool) {
	var cur any = root
	for _, k := range keys {
		if k == "*" {
			arr, ok := cur.([]any)
			if !ok || len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func firstString(root map[string]any, paths ...[]string) string {
	for _, p := range paths {
		if v, ok := dig(root, p...); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
