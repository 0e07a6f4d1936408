// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

/*
rtrmgrd is the router-manager daemon: it loads the schema tree, restores
the running configuration, and serves the configuration API over a unix
socket, driving external routing daemons as the configuration changes.

Usage:
	-cpuprofile=<filename>
		Defines a file which to write a cpu profile that can be parsed with go pprof.
		When defined, the daemon will begin recording cpu profile information when it
		receives a SIGUSR1 signal. Then on a subsequent SIGUSR1 it will write the profile
		information to the defined file.

	-logfile=<filename>
		When defined rtrmgrd will redirect its stdout and stderr to the defined file.

	-pidfile=<filename>
		Specify file for the daemon to write pid in (default: /run/rtrmgr/rtrmgrd.pid).

	-runfile=<filename>
		Specify file for the daemon to write running configuration into (default:
		/run/rtrmgr/running.config).

	-socketfile=<filename>
		Path to the socket used to communicate with the daemon (default:
		/run/rtrmgr/main.sock).

	-schemadir=<dir>
		Directory rtrmgrd will load schema template files from (default:
		/usr/share/rtrmgr/templates).

	-sigdir=<dir>
		Directory holding the remote-call signature database used to validate
		schema action bindings at load time.

	SIGUSR1
		Issuing SIGUSR1 to the daemon will toggle run-time profiling. Profile data will
		be written to the file specified by the cpuprofile option.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"log/syslog"
	"net"
	"os"
	"os/signal"
	"os/user"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/activation"
	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/action"
	"github.com/danos/rtrmgr/bus"
	"github.com/danos/rtrmgr/commit"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/server"
	"github.com/danos/rtrmgr/session"
	"github.com/danos/rtrmgr/supervisor"
	"github.com/danos/rtrmgr/task"
	"github.com/danos/utils/os/group"
)

var basepath string = "/run/rtrmgr"
var runningprof bool
var cpuproffile os.File
var elog *log.Logger

/* Command line options */
var cpuprofile *string = flag.String("cpuprofile",
	basepath+"/rtrmgrd.pprof",
	"Write cpu profile to supplied file on SIGUSR1.")

var memprofile = flag.String("memprofile", basepath+"/rtrmgrd_mem.pprof",
	"Write memory profile to specified file on SIGUSR2")

var logfile *string = flag.String("logfile",
	"",
	"Redirect std{out,err} to supplied file.")

var pidfile *string = flag.String("pidfile",
	basepath+"/rtrmgrd.pid",
	"Write pid to supplied file.")

var socket *string = flag.String("socketfile",
	basepath+"/main.sock",
	"Path to socket used to communicate with daemon.")

var schemadir *string = flag.String("schemadir",
	"/usr/share/rtrmgr/templates",
	"Load schema templates from specified directory.")

var sigdir *string = flag.String("sigdir",
	"",
	"Load remote-call signatures from specified directory.")

var username *string = flag.String("user",
	"rtrmgr",
	"Username to explicitly allow without authorization")

var groupname *string = flag.String("group",
	"rtrmgr",
	"Group that owns the socket")

var runfile *string = flag.String("runfile",
	basepath+"/running.config",
	"File to store current running config into incase of restart")

var supergroup *string = flag.String("supergroup",
	"",
	"Group that is permitted access to all sessions")

var norestart *bool = flag.Bool("norestart",
	false,
	"Disable restart of failed modules")

var noexec *bool = flag.Bool("noexec",
	false,
	"Validate plans but never start processes or issue remote calls")

func sigstartprof() {
	sigch := make(chan os.Signal)
	signal.Notify(sigch, syscall.SIGUSR1)
	signal.Notify(sigch, syscall.SIGUSR2)
	for {
		sig := <-sigch
		switch sig {
		case syscall.SIGUSR1:
			if !runningprof {
				cpuproffile, err := os.Create(*cpuprofile)
				if err != nil {
					log.Fatal(err)
				}
				pprof.StartCPUProfile(cpuproffile)
				runningprof = true
			} else {
				pprof.StopCPUProfile()
				cpuproffile.Close()
				runningprof = false
			}
		case syscall.SIGUSR2:
			f, err := os.Create(*memprofile)
			if err != nil {
				log.Fatal(err)
			}
			pprof.WriteHeapProfile(f)
			f.Close()
		}
	}
}

func fatal(err error) {
	if err != nil {
		log.Println(err)
		elog.Fatal(err)
	}
}

func openLogfile() {
	if logfile == nil || *logfile == "" {
		return
	}
	f, e := os.OpenFile(*logfile, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0640)
	if e != nil {
		fmt.Fprintf(os.Stderr, "%s\n", e)
		return
	}
	defer f.Close()
	syscall.Dup2(int(f.Fd()), 1)
	syscall.Dup2(int(f.Fd()), 2)
}

func writePid() {
	if pidfile == nil {
		return
	}
	f, e := os.OpenFile(*pidfile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if e != nil {
		fmt.Fprintf(os.Stderr, "%s\n", e)
		return
	}
	defer f.Close()
	pid := os.Getpid()
	fmt.Fprintf(f, "%d\n", pid)
}

func getIds(username, groupname string) (uid, gid int) {
	u, err := user.Lookup(username)
	if err != nil {
		uid = 0
	} else {
		uid, _ = strconv.Atoi(u.Uid)
	}
	g, err := group.Lookup(groupname)
	if err != nil {
		gid = 0
	} else {
		gid = int(g.Gid)
	}
	return uid, gid
}

func initialiseLogging() {
	var err error

	openLogfile()

	if logfile == nil || *logfile == "" {
		// log to stderr
		elog = log.New(os.Stderr, "", 0)
	} else {
		//rsyslog may not be up even though it returns to the init system so we
		//have to do this mess to ensure that logging works.
		for i := 0; i < 5; i++ {
			elog, err = rtrmgr.NewLogger(syslog.LOG_ERR|syslog.LOG_DAEMON, 0)

			if err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			//give up and log to stderr (mapped to rtrmgrd.log)
			elog = log.New(os.Stderr, "", 0)
		}
	}
}

func getListeners() net.Listener {
	listeners, err := activation.Listeners(true)
	fatal(err)
	if len(listeners) == 0 {
		fmt.Println("No systemd listeners")
		if !os.IsNotExist(os.Remove(*socket)) {
			fatal(err)
		}

		ua, err := net.ResolveUnixAddr("unix", *socket)
		fatal(err)

		l, err := net.ListenUnix("unix", ua)
		fatal(err)

		err = os.Chmod(*socket, 0777)
		fatal(err)

		uid, gid := getIds(*username, *groupname)
		err = os.Chown(*socket, uid, gid)
		fatal(err)

		listeners = append(listeners, l)
	}
	return listeners[0]
}

// startCore loads the schema and running configuration and assembles
// the supervisor, task manager and commit engine around them.
func startCore() (*schema.Tree, *session.CommitMgr) {
	var sigdb *schema.CallSignatureDB
	if *sigdir != "" {
		db, err := schema.LoadSignatureDB(*sigdir)
		fatal(err)
		sigdb = db
	}

	st, err := schema.Load(*schemadir, sigdb)
	fatal(err)

	running := config.New(st)
	if _, statErr := os.Stat(*runfile); statErr == nil {
		running, err = config.LoadFile(*runfile, st)
		fatal(err)
	}
	running.AddDefaultChildren()
	running.PromoteCommit()

	sup := supervisor.New(!*norestart, elog)
	runner := action.NewRunner(bus.NewClient(), running)
	mgr := task.NewManager(sup, runner, !*noexec, elog)
	engine := commit.NewEngine(st, mgr, elog)
	return st, session.NewCommitMgr(engine, running, elog)
}

func main() {
	debug.SetGCPercent(25)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	initialiseLogging()

	fatal(os.MkdirAll(basepath, 0755))

	go sigstartprof()

	st, cmgr := startCore()

	l := getListeners()

	cfg := &rtrmgr.Config{
		User:       *username,
		Runfile:    *runfile,
		Logfile:    *logfile,
		Pidfile:    *pidfile,
		Schemadir:  *schemadir,
		Sigdir:     *sigdir,
		Socket:     *socket,
		SuperGroup: *supergroup,
	}

	srv := server.NewSrv(l.(*net.UnixListener), st, cmgr, *username,
		cfg, elog)

	writePid()

	// Initialization may generate significant garbage ensure that
	// it is cleaned up immediately.
	runtime.GC()
	debug.FreeOSMemory()

	fatal(srv.Serve())
}
