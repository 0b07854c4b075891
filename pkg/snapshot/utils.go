package snapshot

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const progressPollInterval = 250 * time.Millisecond

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// watchFileGrowth polls the size of path and draws it as a byte counter
// until the returned stop func is called. pg_dump writes the file itself, so
// there is no stream to tee through the bar.
func watchFileGrowth(path string, description string) func() {
	bar := progressbar.DefaultBytes(-1, description)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				_ = bar.Set64(fileSize(path))
				_ = bar.Finish()
				// the bar leaves the cursor at the end of its line
				fmt.Fprintln(os.Stderr)
				return
			case <-ticker.C:
				_ = bar.Set64(fileSize(path))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
