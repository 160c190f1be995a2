// Package interval 区间/矩形重叠判定（无状态纯函数）
//
// All ranges are half-open: [start, start+span) for grid cells and [start, end)
// for time-of-day minutes. Ranges that only touch at a boundary do not overlap.
package interval

// Rect 网格上的矩形（行列起点 + 跨度）
type Rect struct {
	Row     int
	Col     int
	RowSpan int
	ColSpan int
}

// RowEnd 返回行的结束位置（不包含）
func (r Rect) RowEnd() int { return r.Row + r.RowSpan }

// ColEnd 返回列的结束位置（不包含）
func (r Rect) ColEnd() int { return r.Col + r.ColSpan }

// Span 时间区间 [Start, End)，单位为分钟
type Span struct {
	Start int
	End   int
}

// Len returns the span length, never negative.
func (s Span) Len() int {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// RectanglesOverlap reports whether two rectangles share at least one cell.
func RectanglesOverlap(a, b Rect) bool {
	return a.Row < b.RowEnd() && b.Row < a.RowEnd() &&
		a.Col < b.ColEnd() && b.Col < a.ColEnd()
}

// IntervalsOverlap reports whether two spans on the same date intersect.
func IntervalsOverlap(a, b Span) bool {
	return a.Start < b.End && b.Start < a.End
}

// OverlapLength 两个区间交集的长度（无交集时为 0）
func OverlapLength(a, b Span) int {
	if !IntervalsOverlap(a, b) {
		return 0
	}
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	return end - start
}
