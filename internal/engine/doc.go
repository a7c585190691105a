// Package engine keeps a Markdown file and its rendered DOCX counterpart in
// sync.
//
// # Sessions
//
// A Session owns one text/rendered pair. Starting a session with only one of
// the two paths seeds the other by converting once; afterwards, if watching
// is enabled, every settled change to the text file is converted into the
// rendered file and, for bidirectional sessions, the reverse.
//
//	reg := engine.NewRegistry(engine.DefaultConfig(), convert.New(), durable.NewWriter(nil), opener.New(nil))
//	defer reg.Close()
//
//	opts := engine.DefaultOptions()
//	opts.TextPath = "notes/plan.md"
//	id, err := reg.CreateAndStart(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	st, _ := reg.Status(id)
//	fmt.Println(st.RenderedPath) // notes/plan.docx, absolute
//
// # Echo suppression
//
// Writing the rendered file is itself a change the watcher will report. To
// stop that change bouncing back as a rendered→text conversion, each
// completed conversion opens a window (Config.EchoWindow, default 1s) during
// which notifications for the file just written are dropped. The window is a
// timing heuristic: a real edit to that file inside the window is lost. With
// Config.ContentHash the decision is made by comparing the file against the
// bytes the engine last wrote instead.
//
// # Concurrency
//
// Conversions for one direction of one session never overlap: concurrent
// triggers join the conversion already in flight. The Registry is safe for
// concurrent use.
package engine
