// Package monitoring turns a running machine into a web server and allows
// external inspection and control of the emulation.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/avrcore/mcu"
	"github.com/sarchlab/avrcore/monitoring/web"
	"github.com/sarchlab/avrcore/sim"
)

// Monitor can turn an emulated machine into a server and allows external
// monitoring and controlling of the emulation.
type Monitor struct {
	machine     *mcu.Machine
	portNumber  int
	openBrowser bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the dashboard in the default browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterMachine registers the machine to be monitored.
func (m *Monitor) RegisterMachine(machine *mcu.Machine) {
	m.machine = machine
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/pause", m.pauseLoop)
	r.HandleFunc("/api/continue", m.continueLoop)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/next_event", m.nextEvent)
	r.HandleFunc("/api/run/{cycles}", m.run)
	r.HandleFunc("/api/list_peripherals", m.listPeripherals)
	r.HandleFunc("/api/peripheral/{name}", m.listPeripheralDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/scheduler", m.schedulerEntries)
	r.HandleFunc("/api/snapshot", m.snapshot)
	r.HandleFunc("/api/irq", m.pendingIRQs)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring emulation with %s\n", url)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()

	if m.openBrowser {
		err := browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}
}

func (m *Monitor) pauseLoop(w http.ResponseWriter, _ *http.Request) {
	m.machine.Loop().Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueLoop(w http.ResponseWriter, _ *http.Request) {
	m.machine.Loop().Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%d}", m.machine.Loop().Now())
}

func (m *Monitor) nextEvent(w http.ResponseWriter, _ *http.Request) {
	next := m.machine.Loop().NextEventCycle()
	if next == sim.NoEvent {
		fmt.Fprint(w, "{\"next_event\":null}")
		return
	}

	fmt.Fprintf(w, "{\"next_event\":%d}", next)
}

func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	cyclesStr := mux.Vars(r)["cycles"]

	cycles, err := strconv.ParseUint(cyclesStr, 10, 64)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	loop := m.machine.Loop()
	target := loop.Now() + sim.Cycle(cycles)

	go loop.RunUntil(target)
}

func (m *Monitor) listPeripherals(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, p := range m.machine.Peripherals() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "\"%s\"", p.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) listPeripheralDetails(
	w http.ResponseWriter,
	r *http.Request,
) {
	name := mux.Vars(r)["name"]

	p := m.findPeripheralOr404(w, name)
	if p == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	PeriphName string `json:"periph_name,omitempty"`
	FieldName  string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		dieOnErr(err)
	}

	fields := strings.Split(req.FieldName, ".")

	p := m.findPeripheralOr404(w, req.PeriphName)
	if p == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(fields)
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) schedulerEntries(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := m.entriesParseParams(r)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	entries := m.sortAndSelectEntries(sortMethod, limit, offset)

	fmt.Fprint(w, "[")
	for i, e := range entries {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "{\"id\":%d,\"cycle\":%d}", e.ID, e.Cycle)
	}
	fmt.Fprint(w, "]")
}

func (*Monitor) entriesParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "cycle"
	}
	if sortMethod != "cycle" && sortMethod != "id" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `cycle` and `id`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}
	limitNumber, err := strconv.Atoi(limitStr)
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}
	offsetNumber, err := strconv.Atoi(offsetStr)
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func (m *Monitor) sortAndSelectEntries(
	sortMethod string,
	limit, offset int,
) []sim.Entry {
	entries := m.machine.Scheduler().Entries()

	if sortMethod == "cycle" {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Cycle != entries[j].Cycle {
				return entries[i].Cycle < entries[j].Cycle
			}

			return entries[i].ID < entries[j].ID
		})
	}

	if offset > len(entries) {
		offset = len(entries)
	}
	entries = entries[offset:]

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	return entries
}

func (m *Monitor) snapshot(w http.ResponseWriter, _ *http.Request) {
	loop := m.machine.Loop()

	loop.Pause()
	s := m.machine.Snapshot()
	loop.Continue()

	bytes, err := json.Marshal(s)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) pendingIRQs(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"pending_mask\":%d}", m.machine.IRQ().PendingMask())
}

func (m *Monitor) findPeripheralOr404(
	w http.ResponseWriter,
	name string,
) sim.Peripheral {
	p := m.machine.PeripheralByName(name)

	if p == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Peripheral not found"))
		dieOnErr(err)
	}

	return p
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bytes, err := json.Marshal(m.progressBars)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
