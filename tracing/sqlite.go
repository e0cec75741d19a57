package tracing

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// SQLiteTracerBackend is a tracer backend that writes tasks to a SQLite
// database.
type SQLiteTracerBackend struct {
	*sql.DB
	statement *sql.Stmt

	dbName           string
	tasksToWriteToDB []Task
	batchSize        int
}

// NewSQLiteTracerBackend creates a new SQLiteTracerBackend. If path is
// empty, a unique database name is generated.
func NewSQLiteTracerBackend(path string) *SQLiteTracerBackend {
	b := &SQLiteTracerBackend{
		dbName:    path,
		batchSize: 100000,
	}

	atexit.Register(func() { b.Flush() })

	return b
}

// Init establishes a connection to the database and creates the trace table.
func (t *SQLiteTracerBackend) Init() {
	t.createDatabase()
	t.createTable()
	t.prepareStatement()
}

// Write buffers a task for writing.
func (t *SQLiteTracerBackend) Write(task Task) {
	t.tasksToWriteToDB = append(t.tasksToWriteToDB, task)
	if len(t.tasksToWriteToDB) >= t.batchSize {
		t.Flush()
	}
}

// Flush writes all the buffered tasks to the database.
func (t *SQLiteTracerBackend) Flush() {
	if len(t.tasksToWriteToDB) == 0 {
		return
	}

	t.mustExecute("BEGIN TRANSACTION")
	defer t.mustExecute("COMMIT TRANSACTION")

	for _, task := range t.tasksToWriteToDB {
		_, err := t.statement.Exec(
			task.ID,
			task.ParentID,
			task.Kind,
			task.What,
			task.Where,
			task.StartCycle,
			task.EndCycle,
		)
		if err != nil {
			panic(err)
		}
	}

	t.tasksToWriteToDB = nil
}

func (t *SQLiteTracerBackend) createDatabase() {
	if t.dbName == "" {
		t.dbName = "avrcore_trace_" + xid.New().String()
	}

	filename := t.dbName + ".sqlite3"
	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	t.DB = db
}

func (t *SQLiteTracerBackend) createTable() {
	t.mustExecute(`
		create table trace
		(
			task_id     varchar(200) not null,
			parent_id   varchar(200),
			kind        varchar(100),
			what        varchar(100),
			location    varchar(100),
			start_cycle integer not null,
			end_cycle   integer not null
		)
	`)
}

func (t *SQLiteTracerBackend) prepareStatement() {
	stmt, err := t.Prepare(`
		insert into trace
			(task_id, parent_id, kind, what, location,
			 start_cycle, end_cycle)
		values (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		panic(err)
	}

	t.statement = stmt
}

func (t *SQLiteTracerBackend) mustExecute(query string) sql.Result {
	res, err := t.Exec(query)
	if err != nil {
		panic(err)
	}

	return res
}
