package tracing

import (
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// CSVTracerBackend is a tracer backend that stores the tasks in a CSV file.
type CSVTracerBackend struct {
	path string
	file *os.File

	tasks      []Task
	bufferSize int
}

// NewCSVTracerBackend creates a new CSVTracerBackend. If path is empty, a
// unique file name is generated.
func NewCSVTracerBackend(path string) *CSVTracerBackend {
	return &CSVTracerBackend{
		path:       path,
		bufferSize: 1000,
	}
}

// Init creates the tracing csv file. If the file already exists, Init
// panics.
func (t *CSVTracerBackend) Init() {
	if t.path == "" {
		t.path = "avrcore_trace_" + xid.New().String() + ".csv"
	}

	_, err := os.Stat(t.path)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", t.path))
	}

	file, err := os.Create(t.path)
	if err != nil {
		panic(err)
	}
	t.file = file

	fmt.Fprintf(file, "ID, ParentID, Kind, What, Where, Start, End\n")

	atexit.Register(func() {
		t.Flush()
		err := t.file.Close()
		if err != nil {
			panic(err)
		}
	})
}

// Write buffers a task for writing.
func (t *CSVTracerBackend) Write(task Task) {
	t.tasks = append(t.tasks, task)
	if len(t.tasks) >= t.bufferSize {
		t.Flush()
	}
}

// Flush writes the buffered tasks to the CSV file.
func (t *CSVTracerBackend) Flush() {
	for _, task := range t.tasks {
		fmt.Fprintf(t.file, "%s, %s, %s, %s, %s, %d, %d\n",
			task.ID,
			task.ParentID,
			task.Kind,
			task.What,
			task.Where,
			task.StartCycle,
			task.EndCycle,
		)
	}

	t.tasks = nil
}
