package parammap

import (
	"context"
	"html/template"
	"net/http"

	"github.com/golang/glog"
)

const statusPage = `
<html>
<body>
Preset: {{.Preset}} (project {{printf "%q" .ProjectID}})
<table>
<tr><th>Key</th><th>MIDI value</th><th>Destinations</th></tr>
{{range .Entries}}
	<tr>
		<td>{{.Key}}</td>
		<td>{{.MidiValue}}</td>
		<td>{{range .Destinations}}{{.}}<br>{{end}}</td>
	</tr>
{{end}}
</table>
</body>
</html>`

var statusTmpl = template.Must(template.New("status").Parse(statusPage))

type statusEntry struct {
	Key          string
	MidiValue    uint16
	Destinations []string
}

type status struct {
	Preset    string
	ProjectID string
	Entries   []statusEntry
}

// status collects the lookup table. It must run on the owner goroutine.
func (s *Server) status() status {
	st := status{ProjectID: s.m.ProjectID()}
	if pr := s.presets.Active(); pr != nil {
		st.Preset = pr.Name
	}
	for _, e := range s.m.Table().Entries() {
		se := statusEntry{Key: e.Key().String(), MidiValue: e.MidiValue()}
		for _, d := range e.Destinations() {
			desc := "script"
			if cv, ok := d.Owner.(*ControlValue); ok {
				if addr, ok := controlAddress(cv); ok {
					desc = addr
				}
			}
			se.Destinations = append(se.Destinations, desc)
		}
		st.Entries = append(st.Entries, se)
	}
	return st
}

func (s *Server) statusHandler(w http.ResponseWriter, req *http.Request) {
	var st status
	if err := s.Do(req.Context(), func() { st = s.status() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err := statusTmpl.Execute(w, st); err != nil {
		glog.Errorf("status: %v", err)
	}
}

// ServeStatus serves a page listing the lookup table until ctx is done.
func ServeStatus(ctx context.Context, listenAddr string, s *Server) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.statusHandler)

	srv := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
