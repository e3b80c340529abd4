package main

// App bundles the services shared by the HTTP server, the MCP server and
// the CLI.
type App struct {
	Store     *ContentStore
	Sessions  *Sessions
	Shoebox   *Shoebox
	Publisher *Publisher
	Puzzles   *PuzzleService
	Mailer    Mailer
	Events    *Broadcaster
}

// NewApp wires the services around a KV store. gen and mailer may be nil.
func NewApp(kv KV, gen PuzzleGenerator, mailer Mailer, cfg *Config) *App {
	if mailer == nil {
		mailer = disabledMailer{}
	}
	store := NewContentStore(kv)
	events := NewBroadcaster()
	puzzles := NewPuzzleService(gen, cfg.PuzzleTimeout)

	return &App{
		Store:     store,
		Sessions:  NewSessions(store, cfg.SessionSecret, cfg.SessionTTL),
		Shoebox:   NewShoebox(store, puzzles, events),
		Publisher: NewPublisher(store, NewSimulatedCircle(), mailer, events),
		Puzzles:   puzzles,
		Mailer:    mailer,
		Events:    events,
	}
}
