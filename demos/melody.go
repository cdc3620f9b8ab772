package demos

import (
	"time"

	"gregoryjjb/pinloop/console"
	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

const (
	BuzzerPin       = 4
	TempoMultiplier = 1.5
	songPause       = 1500 * time.Millisecond
)

// Note is a square wave of Freq hertz held for Duration. A zero Freq is a
// rest.
type Note struct {
	Freq     int
	Duration time.Duration
}

type Song struct {
	Name  string
	Notes []Note
}

var notes = map[string]int{
	"R":  0,
	"C4": 262,
	"D4": 294,
	"E4": 330,
	"F4": 349,
	"G4": 392,
	"A4": 440,
	"B4": 494,
	"C5": 523,
	"F5": 698,
}

// tune builds a song from alternating note names and millisecond lengths.
func tune(name string, score ...any) Song {
	s := Song{Name: name}
	for i := 0; i+1 < len(score); i += 2 {
		s.Notes = append(s.Notes, Note{
			Freq:     notes[score[i].(string)],
			Duration: time.Duration(score[i+1].(int)) * time.Millisecond,
		})
	}
	return s
}

var Playlist = []Song{
	tune("Twinkle Twinkle Little Star",
		"C4", 250, "C4", 250, "G4", 250, "G4", 250, "A4", 250, "A4", 250, "G4", 500, "R", 250,
		"F4", 250, "F4", 250, "E4", 250, "E4", 250, "D4", 250, "D4", 250, "C4", 500, "R", 500),
	tune("Mary Had a Little Lamb",
		"E4", 250, "D4", 250, "C4", 250, "D4", 250, "E4", 250, "E4", 250, "E4", 500,
		"D4", 250, "D4", 250, "D4", 500, "E4", 250, "G4", 250, "G4", 500, "R", 500),
	tune("Ode to Joy",
		"E4", 250, "E4", 250, "F4", 250, "G4", 250, "G4", 250, "F4", 250, "E4", 250, "D4", 250,
		"C4", 250, "C4", 250, "D4", 250, "E4", 250, "E4", 375, "D4", 125, "D4", 500, "R", 500),
}

// Player bit-bangs a buzzer: each note is an interval toggling the pin every
// half period, stopped by a timeout at the end of the note. Songs loop
// forever. All state is touched only from dispatcher callbacks.
type Player struct {
	rt      *loop.Runtime
	con     *console.Console
	buzzer  *loop.Pin
	songs   []Song
	tempo   float64
	song    int
	note    int
	level   bool
	tone    *loop.Timer
	end     *loop.Timer
	started int
	stopped bool
}

func StartPlayer(rt *loop.Runtime, con *console.Console, pin int, songs []Song, tempo float64) (*Player, error) {
	if len(songs) == 0 {
		return nil, loop.ErrConfiguration
	}

	con.Log("--- Starting Continuous Melody Player on GPIO", pin, "---")
	buzzer, err := rt.Setup(pin, loop.PinConfig{Mode: gpio.ModeOutput})
	if err != nil {
		return nil, err
	}

	p := &Player{
		rt:     rt,
		con:    con,
		buzzer: buzzer,
		songs:  songs,
		tempo:  tempo,
	}
	p.playSong()
	return p, nil
}

func (p *Player) playSong() {
	if p.song >= len(p.songs) {
		p.song = 0
	}
	p.note = 0
	p.started++
	p.con.Log("Now playing:", p.songs[p.song].Name)
	p.playNext()
}

func (p *Player) playNext() {
	if p.stopped {
		return
	}

	song := p.songs[p.song]
	if p.note >= len(song.Notes) {
		p.con.Log("Melody finished. Pausing before next song...")
		p.after(songPause, func() {
			p.song++
			p.playSong()
		})
		return
	}

	n := song.Notes[p.note]
	p.note++
	duration := time.Duration(float64(n.Duration) * p.tempo)

	if n.Freq <= 0 {
		p.after(duration, p.playNext)
		return
	}

	tone, err := p.rt.SetInterval(p.toggle, time.Second/time.Duration(2*n.Freq))
	if err != nil {
		p.con.Error("Failed to start tone:", err)
		return
	}
	p.tone = tone
	p.after(duration, func() {
		p.rt.ClearInterval(p.tone)
		p.tone = nil
		p.write(false)
		p.playNext()
	})
}

func (p *Player) after(d time.Duration, fn func()) {
	t, err := p.rt.SetTimeout(fn, d)
	if err != nil {
		p.con.Error("Failed to schedule note:", err)
		return
	}
	p.end = t
}

func (p *Player) toggle() {
	p.write(!p.level)
}

func (p *Player) write(level bool) {
	p.level = level
	if err := p.buzzer.Write(level); err != nil {
		p.con.Error("Buzzer write failed:", err)
	}
}

// SongsStarted counts how many songs have begun, including repeats.
func (p *Player) SongsStarted() int {
	return p.started
}

// Stop silences the buzzer. Call it from a callback or once Run has
// returned.
func (p *Player) Stop() error {
	p.stopped = true
	p.rt.ClearInterval(p.tone)
	p.rt.ClearTimeout(p.end)
	return closeAll(p.buzzer)
}
