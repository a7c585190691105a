// Package durable writes files that may be held open by another application.
//
// Word processors commonly keep an exclusive lock on the document they have
// open. A plain os.WriteFile against such a file fails with EBUSY, EACCES or
// EPERM (ERROR_SHARING_VIOLATION and friends on Windows) until the lock is
// released. Writer retries those errors with exponential backoff:
//
//	w := durable.NewWriter(nil)
//	if err := w.Write(ctx, "/docs/note.docx", data); err != nil {
//	    var pending *durable.PendingError
//	    if errors.As(err, &pending) {
//	        log.Printf("saved to %s instead", pending.PendingPath)
//	    }
//	}
//
// When every attempt fails the bytes are written next to the destination with
// a ".pending" suffix and Write returns a *PendingError. The destination itself
// is left untouched, so callers must treat the result as a partial success.
//
// Errors that are not lock related (missing directory, invalid path) are
// returned immediately without retrying.
package durable
