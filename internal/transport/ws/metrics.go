package ws

import (
	"fmt"
	"net/http"
)

// MetricsHandler serves the relay counters in Prometheus text format.
func (s *Server) MetricsHandler(matchID string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := &s.metrics

		fmt.Fprintf(rw, "# HELP rts_match_tick Last broadcast tick.\n")
		fmt.Fprintf(rw, "# TYPE rts_match_tick gauge\n")
		fmt.Fprintf(rw, "rts_match_tick{match=%q} %d\n", matchID, m.tick.Load())

		fmt.Fprintf(rw, "# HELP rts_relay_clients Connected clients.\n")
		fmt.Fprintf(rw, "# TYPE rts_relay_clients gauge\n")
		fmt.Fprintf(rw, "rts_relay_clients{match=%q} %d\n", matchID, m.clients.Load())

		fmt.Fprintf(rw, "# HELP rts_relay_commands_total Commands accepted into a batch.\n")
		fmt.Fprintf(rw, "# TYPE rts_relay_commands_total counter\n")
		fmt.Fprintf(rw, "rts_relay_commands_total{match=%q} %d\n", matchID, m.commands.Load())

		fmt.Fprintf(rw, "# HELP rts_relay_rejected_total Inbound messages rejected, by reason.\n")
		fmt.Fprintf(rw, "# TYPE rts_relay_rejected_total counter\n")
		fmt.Fprintf(rw, "rts_relay_rejected_total{match=%q,reason=%q} %d\n", matchID, "invalid", m.rejected.Load())
		fmt.Fprintf(rw, "rts_relay_rejected_total{match=%q,reason=%q} %d\n", matchID, "rate_limit", m.rateLimited.Load())

		fmt.Fprintf(rw, "# HELP rts_relay_slow_disconnects_total Clients dropped for a full outbound queue.\n")
		fmt.Fprintf(rw, "# TYPE rts_relay_slow_disconnects_total counter\n")
		fmt.Fprintf(rw, "rts_relay_slow_disconnects_total{match=%q} %d\n", matchID, m.slowDisconnect.Load())

		if s.recorder != nil {
			fmt.Fprintf(rw, "# HELP rts_recorder_errors_total Batches the recorder failed to apply.\n")
			fmt.Fprintf(rw, "# TYPE rts_recorder_errors_total counter\n")
			fmt.Fprintf(rw, "rts_recorder_errors_total{match=%q} %d\n", matchID, m.recorderErrors.Load())
		}
	}
}
