package world

// checkVictory decides the match once the opening grace period is over.
// The outcome is expressed for the designated player and never changes
// afterwards.
func (c *stepCtx) checkVictory() {
	s := c.s
	if s.Status != StatusPlaying || s.Tick < uint64(c.e.tune.Victory.GraceTicks) || s.Designated == "" {
		return
	}
	if s.Assets(s.Designated) == 0 {
		s.Status = StatusDefeat
		for _, p := range s.Players {
			if p.ID != s.Designated && s.Assets(p.ID) > 0 {
				s.Winner = p.ID
				break
			}
		}
		return
	}
	for _, p := range s.Players {
		if p.ID != s.Designated && s.Assets(p.ID) > 0 {
			return
		}
	}
	s.Status = StatusVictory
	s.Winner = s.Designated
}
