package cc

import (
	"math"
)

const (
	// windowShift is the number of fractional bits carried by a
	// ScaledWindow. Ten bits let sub-packet adjustments accumulate without
	// truncation.
	windowShift = 10

	// WindowScale is one whole packet in scaled units.
	WindowScale = 1 << windowShift

	// minWindow is the lowest value a ScaledWindow may hold: two packets.
	minWindow ScaledWindow = 2 << windowShift

	// maxPackets is the largest whole-packet count representable without
	// overflowing the scaled form.
	maxPackets = math.MaxUint32 >> windowShift
)

// ScaledWindow is a congestion window carried at ten fractional bits.
// Arithmetic on it saturates instead of wrapping, and no operation can take
// it below the two-packet floor.
type ScaledWindow uint32

// WindowFromPackets converts a whole-packet window into scaled form.
func WindowFromPackets(pkts uint32) ScaledWindow {
	if pkts > maxPackets {
		return ScaledWindow(math.MaxUint32)
	}
	w := ScaledWindow(pkts << windowShift)
	if w < minWindow {
		return minWindow
	}
	return w
}

// Packets returns the whole-packet window, fractional bits truncated.
func (w ScaledWindow) Packets() uint32 {
	return uint32(w) >> windowShift
}

// Add grows the window by delta scaled units, saturating at the top of the
// range instead of wrapping.
func (w ScaledWindow) Add(delta uint32) ScaledWindow {
	if uint32(w) > math.MaxUint32-delta {
		return ScaledWindow(math.MaxUint32)
	}
	return w + ScaledWindow(delta)
}

// Sub shrinks the window by delta scaled units. The subtraction is clamped
// so it cannot wrap, and the result cannot drop below the two-packet floor.
func (w ScaledWindow) Sub(delta uint32) ScaledWindow {
	d := ScaledWindow(delta)
	if d > w {
		d = w
	}
	w -= d
	if w < minWindow {
		return minWindow
	}
	return w
}

// Min returns the smaller of two windows.
func (w ScaledWindow) Min(o ScaledWindow) ScaledWindow {
	if o < w {
		return o
	}
	return w
}

// PacedIncrement returns the congestion-avoidance growth earned by one
// acknowledgment: one packet of scale spread across the current window.
// The divisor comes from the floor-clamped packet count, so the division is
// always defined.
func (w ScaledWindow) PacedIncrement() uint32 {
	pkts := w.Packets()
	if pkts < minWindow.Packets() {
		pkts = minWindow.Packets()
	}
	return WindowScale / pkts
}
