package snapshot

import "github.com/argosight/livetrack/pkg/model"

// Paginate returns the page at (offset, limit) plus the effective offset. A
// requested offset past the end is clamped into [0, max(0, total-limit)]
// rather than returning an out-of-range empty page, so the final page of a
// listing stays reachable.
func Paginate(points []model.TrackerPoint, offset, limit int) ([]model.TrackerPoint, int) {
	total := len(points)
	if limit <= 0 {
		limit = total
	}
	maxOffset := total - limit
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset < 0 {
		offset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]model.TrackerPoint, end-offset)
	copy(page, points[offset:end])
	return page, offset
}
