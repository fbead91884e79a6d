package metrics

// wellKnown holds descriptors for metrics whose semantics are fixed across
// PCP installations. Classify answers these without a gateway round trip.
var wellKnown = map[string]Descriptor{}

func init() {
	counter := func(name, unit string, instances bool, help string) {
		wellKnown[name] = Descriptor{Name: name, Kind: KindCounter, Unit: unit, Type: "U64", HasInstances: instances, Help: help}
	}
	instant := func(name, unit string, instances bool, help string) {
		wellKnown[name] = Descriptor{Name: name, Kind: KindInstant, Unit: unit, Type: "U64", HasInstances: instances, Help: help}
	}
	discrete := func(name, unit, typ string, instances bool, help string) {
		wellKnown[name] = Descriptor{Name: name, Kind: KindDiscrete, Unit: unit, Type: typ, HasInstances: instances, Help: help}
	}

	// CPU time
	counter("kernel.all.cpu.user", "millisec", false, "total user CPU time for all CPUs")
	counter("kernel.all.cpu.sys", "millisec", false, "total kernel CPU time for all CPUs")
	counter("kernel.all.cpu.idle", "millisec", false, "total idle CPU time for all CPUs")
	counter("kernel.all.cpu.wait.total", "millisec", false, "total I/O wait CPU time for all CPUs")
	counter("kernel.all.cpu.nice", "millisec", false, "total nice user CPU time for all CPUs")
	counter("kernel.percpu.cpu.user", "millisec", true, "user CPU time per CPU")
	counter("kernel.percpu.cpu.sys", "millisec", true, "kernel CPU time per CPU")
	counter("kernel.percpu.cpu.idle", "millisec", true, "idle CPU time per CPU")
	counter("kernel.all.pswitch", "count", false, "context switches")
	counter("kernel.all.intr", "count", false, "interrupts")

	// Disk
	counter("disk.all.read_bytes", "Kbyte", false, "bytes read from all disks")
	counter("disk.all.write_bytes", "Kbyte", false, "bytes written to all disks")
	counter("disk.all.read", "count", false, "read operations on all disks")
	counter("disk.all.write", "count", false, "write operations on all disks")
	counter("disk.dev.read_bytes", "Kbyte", true, "bytes read per disk")
	counter("disk.dev.write_bytes", "Kbyte", true, "bytes written per disk")
	counter("disk.dev.read", "count", true, "read operations per disk")
	counter("disk.dev.write", "count", true, "write operations per disk")

	// Network interfaces
	counter("network.interface.in.bytes", "byte", true, "bytes received per interface")
	counter("network.interface.out.bytes", "byte", true, "bytes sent per interface")
	counter("network.interface.in.packets", "count", true, "packets received per interface")
	counter("network.interface.out.packets", "count", true, "packets sent per interface")
	counter("network.interface.in.errors", "count", true, "receive errors per interface")
	counter("network.interface.out.errors", "count", true, "transmit errors per interface")
	counter("network.interface.in.drops", "count", true, "receive drops per interface")

	// TCP and UDP protocol counters
	for _, n := range []string{"activeopens", "passiveopens", "attemptfails", "estabresets", "retranssegs", "inerrs", "outrsts"} {
		counter("network.tcp."+n, "count", false, "TCP "+n)
	}
	for _, n := range []string{"indatagrams", "outdatagrams", "inerrors", "noports"} {
		counter("network.udp."+n, "count", false, "UDP "+n)
	}
	instant("network.tcp.currestab", "count", false, "current established TCP connections")

	// Processes
	counter("proc.psinfo.utime", "millisec", true, "user CPU time per process")
	counter("proc.psinfo.stime", "millisec", true, "system CPU time per process")
	counter("proc.io.read_bytes", "byte", true, "bytes read per process")
	counter("proc.io.write_bytes", "byte", true, "bytes written per process")
	instant("proc.memory.rss", "Kbyte", true, "resident set size per process")
	discrete("proc.psinfo.pid", "none", "U32", true, "process identifier")
	discrete("proc.psinfo.cmd", "none", "STRING", true, "command name")
	discrete("proc.psinfo.psargs", "none", "STRING", true, "full command line")

	// Control groups
	counter("cgroup.cpuacct.usage", "nanosec", true, "CPU usage per cgroup")

	// Memory
	for _, n := range []string{"used", "free", "available", "cached", "bufmem", "swapTotal", "swapFree"} {
		instant("mem.util."+n, "Kbyte", false, "memory "+n)
	}
	discrete("mem.physmem", "Kbyte", "U64", false, "total physical memory")

	// Load and scheduler
	wellKnown["kernel.all.load"] = Descriptor{Name: "kernel.all.load", Kind: KindInstant, Unit: "none", Type: "FLOAT", HasInstances: true, Help: "1, 5 and 15 minute load average"}
	instant("kernel.all.runnable", "count", false, "runnable processes")
	instant("kernel.all.nprocs", "count", false, "number of processes")

	// Hardware and identity
	discrete("hinv.ncpu", "count", "U32", false, "number of CPUs")
	discrete("kernel.uname.release", "none", "STRING", false, "kernel release")
	discrete("kernel.uname.sysname", "none", "STRING", false, "operating system name")
}

// Lookup returns the built-in descriptor for name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := wellKnown[name]
	return d, ok
}
