package anki

import (
	"archive/zip"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/snonux/danskrecall/internal"
)

// noteNamespace scopes the name-based UUIDs used for note GUIDs and IDs
var noteNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://codeberg.org/snonux/danskrecall"))

const noteTypeName = "DanskRecall Vocabulary (Front/Back)"

// APKGGenerator creates Anki package files (.apkg)
type APKGGenerator struct {
	deckName     string
	mediaDir     string
	deckID       int64
	modelID      int64
	records      []EnrichedRecord
	mediaFiles   map[string]int // maps media filename to media number
	mediaCounter int
}

// NewAPKGGenerator creates a new APKG generator. Audio is read from mediaDir.
func NewAPKGGenerator(deckName, mediaDir string) *APKGGenerator {
	// Stable IDs let a re-import update the existing deck and note type
	return &APKGGenerator{
		deckName:   deckName,
		mediaDir:   mediaDir,
		deckID:     stableID("deck:" + deckName),
		modelID:    stableID("model:" + noteTypeName),
		records:    make([]EnrichedRecord, 0),
		mediaFiles: make(map[string]int),
	}
}

// AddRecord adds a record to the generator
func (g *APKGGenerator) AddRecord(record EnrichedRecord) {
	g.records = append(g.records, record)
}

// NoteGUID returns the deterministic note GUID for a vocabulary row. The
// example sentence tells apart rows that share a word. occurrence counts
// earlier rows with the same word and sentence in one package.
func NoteGUID(word, sentence string, occurrence int) string {
	name := "note:" + strings.ToLower(word) + "\x1f" + sentence
	if occurrence > 0 {
		name += "\x1f" + strconv.Itoa(occurrence)
	}
	return uuid.NewSHA1(noteNamespace, []byte(name)).String()
}

// stableID maps name to a positive 48 bit integer
func stableID(name string) int64 {
	id := uuid.NewSHA1(noteNamespace, []byte(name))
	var buf [8]byte
	copy(buf[2:], id[:6])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// GenerateAPKG creates an .apkg file
func (g *APKGGenerator) GenerateAPKG(outputPath string) error {
	tempDir, err := os.MkdirTemp("", "anki_export_*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Media first, the note fields depend on g.mediaFiles
	if err := g.copyMediaFiles(tempDir); err != nil {
		return fmt.Errorf("failed to copy media files: %w", err)
	}

	if err := g.createMediaMapping(tempDir); err != nil {
		return fmt.Errorf("failed to create media mapping: %w", err)
	}

	dbPath := filepath.Join(tempDir, "collection.anki2")
	if err := g.createDatabase(dbPath); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	if err := g.createZipPackage(tempDir, outputPath); err != nil {
		return fmt.Errorf("failed to create zip package: %w", err)
	}

	return nil
}

// createDatabase creates the Anki SQLite database
func (g *APKGGenerator) createDatabase(dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := g.createTables(db); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := g.insertCollection(db); err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}

	if err := g.insertNotesAndCards(db); err != nil {
		return fmt.Errorf("failed to insert notes and cards: %w", err)
	}

	return nil
}

// createTables creates the required Anki database tables
func (g *APKGGenerator) createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE col (
			id integer PRIMARY KEY,
			crt integer NOT NULL,
			mod integer NOT NULL,
			scm integer NOT NULL,
			ver integer NOT NULL,
			dty integer NOT NULL,
			usn integer NOT NULL,
			ls integer NOT NULL,
			conf text NOT NULL,
			models text NOT NULL,
			decks text NOT NULL,
			dconf text NOT NULL,
			tags text NOT NULL
		)`,
		`CREATE TABLE notes (
			id integer PRIMARY KEY,
			guid text NOT NULL,
			mid integer NOT NULL,
			mod integer NOT NULL,
			usn integer NOT NULL,
			tags text NOT NULL,
			flds text NOT NULL,
			sfld text NOT NULL,
			csum integer NOT NULL,
			flags integer NOT NULL,
			data text NOT NULL
		)`,
		`CREATE TABLE cards (
			id integer PRIMARY KEY,
			nid integer NOT NULL,
			did integer NOT NULL,
			ord integer NOT NULL,
			mod integer NOT NULL,
			usn integer NOT NULL,
			type integer NOT NULL,
			queue integer NOT NULL,
			due integer NOT NULL,
			ivl integer NOT NULL,
			factor integer NOT NULL,
			reps integer NOT NULL,
			lapses integer NOT NULL,
			left integer NOT NULL,
			odue integer NOT NULL,
			odid integer NOT NULL,
			flags integer NOT NULL,
			data text NOT NULL
		)`,
		`CREATE TABLE revlog (
			id integer PRIMARY KEY,
			cid integer NOT NULL,
			usn integer NOT NULL,
			ease integer NOT NULL,
			ivl integer NOT NULL,
			lastIvl integer NOT NULL,
			factor integer NOT NULL,
			time integer NOT NULL,
			type integer NOT NULL
		)`,
		`CREATE TABLE graves (
			usn integer NOT NULL,
			oid integer NOT NULL,
			type integer NOT NULL
		)`,
		// Create indexes
		`CREATE INDEX ix_notes_csum ON notes (csum)`,
		`CREATE INDEX ix_notes_usn ON notes (usn)`,
		`CREATE INDEX ix_cards_usn ON cards (usn)`,
		`CREATE INDEX ix_cards_nid ON cards (nid)`,
		`CREATE INDEX ix_cards_sched ON cards (did, queue, due)`,
		`CREATE INDEX ix_revlog_usn ON revlog (usn)`,
		`CREATE INDEX ix_revlog_cid ON revlog (cid)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// insertCollection inserts the collection metadata
func (g *APKGGenerator) insertCollection(db *sql.DB) error {
	now := time.Now().Unix()

	decks := map[string]any{
		"1":                         deckConfig(1, "Default", "", now),
		fmt.Sprintf("%d", g.deckID): deckConfig(g.deckID, g.deckName, "Danish vocabulary with ordnet.dk pronunciation", now),
	}
	decksJSON, err := json.Marshal(decks)
	if err != nil {
		return err
	}

	models := map[string]any{
		fmt.Sprintf("%d", g.modelID): g.createNoteTypeConfig(now),
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return err
	}

	conf := map[string]any{
		"nextPos":       1,
		"estTimes":      true,
		"activeDecks":   []int64{1},
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
		"curDeck":       1,
		"newSpread":     0,
		"dueCounts":     true,
		"collapseTime":  1200,
		"timeLim":       0,
		"schedVer":      1,
		"curModel":      fmt.Sprintf("%d", g.modelID),
		"dayLearnFirst": false,
	}
	confJSON, err := json.Marshal(conf)
	if err != nil {
		return err
	}

	// Deck options
	dconf := map[string]any{
		"1": map[string]any{
			"id":   1,
			"name": "Default",
			"dyn":  0,
			"new": map[string]any{
				"delays":        []int{1, 10},
				"ints":          []int{1, 4, 7},
				"initialFactor": 2500,
				"perDay":        20,
				"order":         1,
				"bury":          true,
				"separate":      true,
			},
			"lapse": map[string]any{
				"delays":      []int{10},
				"mult":        0,
				"minInt":      1,
				"leechFails":  8,
				"leechAction": 0,
			},
			"rev": map[string]any{
				"perDay":   100,
				"ease4":    1.3,
				"fuzz":     0.05,
				"maxIvl":   36500,
				"ivlFct":   1,
				"bury":     true,
				"minSpace": 1,
			},
			"timer":    0,
			"maxTaken": 60,
			"usn":      0,
			"mod":      now,
			"autoplay": true,
			"replayq":  true,
		},
	}
	dconfJSON, err := json.Marshal(dconf)
	if err != nil {
		return err
	}

	query := `INSERT INTO col VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.Exec(query,
		1,        // id
		now,      // crt
		now*1000, // mod
		now*1000, // scm
		11,       // ver (schema version)
		0,        // dty
		0,        // usn
		0,        // ls
		string(confJSON),
		string(modelsJSON),
		string(decksJSON),
		string(dconfJSON),
		"{}", // tags
	)
	return err
}

func deckConfig(id int64, name, desc string, now int64) map[string]any {
	return map[string]any{
		"id":               id,
		"name":             name,
		"mod":              now,
		"desc":             desc,
		"collapsed":        false,
		"dyn":              0,
		"conf":             1,
		"usn":              0,
		"newToday":         []int{0, 0},
		"revToday":         []int{0, 0},
		"lrnToday":         []int{0, 0},
		"timeToday":        []int{0, 0},
		"browserCollapsed": false,
		"extendNew":        10,
		"extendRev":        50,
	}
}

// createNoteTypeConfig creates the note type configuration
func (g *APKGGenerator) createNoteTypeConfig(now int64) map[string]any {
	field := func(name string, ord int) map[string]any {
		return map[string]any{
			"name":   name,
			"ord":    ord,
			"sticky": false,
			"rtl":    false,
			"font":   "Arial",
			"size":   20,
			"media":  []string{},
		}
	}

	return map[string]any{
		"id":    g.modelID,
		"name":  noteTypeName,
		"type":  0,
		"mod":   now,
		"usn":   -1,
		"sortf": 0,
		"did":   g.deckID,
		"req":   [][]any{{0, "all", []int{0}}},
		"vers":  []int{},
		"tags":  []string{},
		"latexPre": `\documentclass[12pt]{article}
\special{papersize=3in,5in}
\usepackage[utf8]{inputenc}
\usepackage{amssymb,amsmath}
\pagestyle{empty}
\setlength{\parindent}{0in}
\begin{document}`,
		"latexPost": `\end{document}`,
		"flds":      []map[string]any{field("Front", 0), field("Back", 1)},
		"tmpls": []map[string]any{
			{
				"name":  "Card 1",
				"ord":   0,
				"qfmt":  `<div class="front">{{Front}}</div>`,
				"afmt":  "{{FrontSide}}\n\n<hr id=\"answer\">\n\n<div class=\"back\">{{Back}}</div>",
				"did":   nil,
				"bqfmt": "",
				"bafmt": "",
			},
		},
		"css": cardCSS,
	}
}

const cardCSS = `.card {
  font-family: Arial, sans-serif;
  font-size: 20px;
  text-align: center;
  color: #333;
  background-color: white;
}

.front, .back {
  padding: 20px;
}

.front b {
  font-size: 32px;
  color: #c60c30;
}

hr#answer {
  margin: 30px 0;
  border: 0;
  border-top: 1px solid #ecf0f1;
}`

// insertNotesAndCards inserts one note with a single card per record
func (g *APKGGenerator) insertNotesAndCards(db *sql.DB) error {
	now := time.Now()
	noteQuery := `INSERT INTO notes VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	cardQuery := `INSERT INTO cards VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	occurrences := make(map[string]int)
	for i, record := range g.records {
		noteID := now.UnixMilli() + int64(i*2)
		cardID := noteID + 1

		key := strings.ToLower(record.Word) + "\x1f" + record.ExampleSentenceDanish
		guid := NoteGUID(record.Word, record.ExampleSentenceDanish, occurrences[key])
		occurrences[key]++

		if _, ok := g.mediaFiles[record.AudioFilename]; !ok {
			record.AudioFilename = ""
		}

		// Fields are separated by ASCII 31
		fields := strings.Join([]string{record.Front(), record.Back()}, "\x1f")

		_, err := db.Exec(noteQuery,
			noteID,      // id
			guid,        // guid
			g.modelID,   // mid
			now.Unix(),  // mod
			-1,          // usn
			"danish",    // tags
			fields,      // flds
			record.Word, // sfld (sort field)
			0,           // csum
			0,           // flags
			"",          // data
		)
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}

		_, err = db.Exec(cardQuery,
			cardID,     // id
			noteID,     // nid
			g.deckID,   // did
			0,          // ord
			now.Unix(), // mod
			-1,         // usn
			0,          // type (0=new)
			0,          // queue (0=new)
			i+1,        // due (position for new cards)
			0,          // ivl
			0,          // factor
			0,          // reps
			0,          // lapses
			0,          // left
			0,          // odue
			0,          // odid
			0,          // flags
			"",         // data
		)
		if err != nil {
			return fmt.Errorf("failed to insert card: %w", err)
		}
	}

	return nil
}

// copyMediaFiles copies the referenced audio into tempDir under numeric names
func (g *APKGGenerator) copyMediaFiles(tempDir string) error {
	for _, record := range g.records {
		if record.AudioFilename == "" {
			continue
		}
		if _, exists := g.mediaFiles[record.AudioFilename]; exists {
			continue
		}

		source := filepath.Join(g.mediaDir, record.AudioFilename)
		if !internal.FileExists(source) {
			continue
		}

		targetPath := filepath.Join(tempDir, fmt.Sprintf("%d", g.mediaCounter))
		if err := copyFile(source, targetPath); err != nil {
			return fmt.Errorf("failed to copy audio file %s: %w", source, err)
		}
		g.mediaFiles[record.AudioFilename] = g.mediaCounter
		g.mediaCounter++
	}

	return nil
}

// createMediaMapping creates the media mapping JSON file
func (g *APKGGenerator) createMediaMapping(tempDir string) error {
	mapping := make(map[string]string)
	for filename, num := range g.mediaFiles {
		mapping[fmt.Sprintf("%d", num)] = filename
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(tempDir, "media"), data, 0644)
}

// createZipPackage zips tempDir into outputPath
func (g *APKGGenerator) createZipPackage(tempDir, outputPath string) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}

	return internal.WriteAtomic(outputPath, func(w io.Writer) error {
		archive := zip.NewWriter(w)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := addZipEntry(archive, tempDir, entry.Name()); err != nil {
				return err
			}
		}
		return archive.Close()
	})
}

func addZipEntry(archive *zip.Writer, dir, name string) error {
	writer, err := archive.Create(name)
	if err != nil {
		return err
	}

	file, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
