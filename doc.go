// Package jobserver implements the GNU make jobserver protocol: a
// cross-process pool of execution tokens that bounds how many work units run
// concurrently across an entire build tree, no matter how many cooperating
// processes are active.
//
// On Unix the pool is the byte count of a shared pipe (anonymous pair or
// named FIFO, the default transport of make >= 4.4); on Windows it is a
// named kernel semaphore, compatible with mingw32-make. A process either
// creates a fresh pool or inherits one from the environment that make (or a
// parent using this package) prepared.
//
// # Basic Usage
//
// Connect to a jobserver set up by make or another parent process:
//
//	client, err := jobserver.FromEnvClient()
//	if err != nil {
//	    log.Fatal("no jobserver configured")
//	}
//
// Acquire a token, do one unit of work, release it:
//
//	token, err := client.Acquire() // blocks until a token is available
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer token.Release() // Returns nil on success; safe to ignore in defer
//
// Create a new pool and share it with a child process:
//
//	client, err := jobserver.New(4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cmd := exec.Command("make")
//	client.Configure(cmd)
//
// # Helper Thread
//
// Acquire blocks in a kernel wait, which is awkward for hosts that already
// run an event loop. StartHelperThread converts acquisition into callbacks:
//
//	helper, err := client.StartHelperThread(func(tok *jobserver.Acquired, err error) {
//	    // one callback per satisfied RequestToken
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer helper.Close()
//	helper.RequestToken()
//
// # Caveats
//
// No attempt is made to release tokens when a process dies abnormally. A
// killed token holder leaks its tokens; this is normally fine because a
// ctrl-c tears down the whole build, but it is worth being aware of.
//
// On Windows there are two make implementations. The MSYS2 mingw32-make
// advertises a named semaphore and works with this package; the other make
// uses an undocumented descriptor scheme and is not supported.
package jobserver
