package looper

// LayerStatus describes one layer for the status surface.
type LayerStatus struct {
	Cells  int
	Muted  bool
	Volume uint8
}

// Status is a point-in-time snapshot of the engine, read by the display
// surface. It never aliases engine internals.
type Status struct {
	Armed       bool
	Recording   bool // initial layer still open
	Looping     bool // loop closed and replaying
	ActiveLayer int
	LayerArmed  bool
	LoopLength  DeltaTime // sum of the gaps around the closed ring
	CellsFree   int
	Layers      [MaxLayers]LayerStatus
}

// Status walks the loop body and summarizes the engine state.
func (l *Loop) Status() Status {
	s := Status{
		Armed:       l.armed,
		Recording:   l.firstCell != nil,
		Looping:     l.firstCell == nil && l.recentCell != nil,
		ActiveLayer: int(l.activeLayer),
		LayerArmed:  l.layerArmed,
		CellsFree:   l.pool.available(),
	}
	for i := range s.Layers {
		s.Layers[i].Muted = l.layerMutes[i]
		s.Layers[i].Volume = l.layerVolumes[i]
	}

	start := l.recentCell
	if l.firstCell != nil {
		start = l.firstCell
	}
	for c := start; c != nil; {
		s.Layers[c.layer].Cells++
		if l.firstCell == nil {
			s.LoopLength += c.nextTime
		}
		c = c.next
		if c == start {
			break
		}
	}

	return s
}
