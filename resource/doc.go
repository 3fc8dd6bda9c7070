// Package resource provides the native object handle table used by script
// runtimes.
//
// A script object never holds a Go pointer directly. Its instance slot holds
// a Handle, and the Table maps that handle to the Go value:
//
//	table := resource.NewTable(func(e resource.Entry) {
//	    if e.Owned {
//	        destroy(e.Value)
//	    }
//	})
//
//	h, err := table.Insert(typeIndex, point, true)
//	value, ok := table.Get(h)
//
// # Ownership
//
// Owned entries were created by the script side (a constructor call or a
// returned object the script now owns); the finalizer runs their destructor
// when the script object is collected. Borrowed entries are views of objects
// native code still owns; releasing them never destroys the value.
//
// # Pinning
//
// A native method running against an object pins its handle for the
// duration of the call:
//
//	if table.Pin(h) {
//	    defer table.Unpin(h)
//	    ...
//	}
//
// A Release that races with a running call is deferred until the last Unpin,
// so the destructor never runs under a live method.
//
// # Observers
//
// Subscribe receives created, pinned, unpinned, deferred and released
// events, useful for lifecycle logging and leak accounting.
package resource
