// Package dircache implements a directory-backed generational key/value
// cache for values that are expensive to recompute and change rarely.
//
// A Cache owns a single root directory. Each key is a relative path
// fragment and gets its own directory under the root, holding a small
// text manifest plus up to N numbered generation files recording
// successive values written under that key; generation 0 is always the
// newest and is always stored in its original, unencoded form.
//
//	c, err := dircache.Open("/var/cache/probes", dircache.DefaultOpenOpts())
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	val, ok, err := c.Get("example.com/health")
//	if err != nil {
//	    return err
//	}
//	if !ok {
//	    val, err = c.GetOrInsert("example.com/health", probeHealth)
//	    ...
//	}
//
// Cache is not safe for concurrent use, and does not coordinate with
// other processes sharing the same root. There is no stronger
// crash-atomicity than successive rename-then-write gives: a process
// killed mid-write can leave a key's directory in an intermediate state,
// which is an accepted risk rather than something this package guards
// against.
package dircache
