package instance

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// MapWatcher reloads map files when they change on disk. onReload is called
// with the world lock held, once per reloaded or removed map.
type MapWatcher struct {
	watcher  *fsnotify.Watcher
	world    *World
	onReload func(mapID string)
	closeCh  chan struct{}
	done     chan struct{}
}

// NewMapWatcher starts watching dir for map file changes.
func NewMapWatcher(world *World, dir string, onReload func(mapID string)) (*MapWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	mw := &MapWatcher{
		watcher:  fw,
		world:    world,
		onReload: onReload,
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go mw.run()
	return mw, nil
}

// Close stops the watcher and waits for pending reloads to finish.
func (mw *MapWatcher) Close() error {
	select {
	case <-mw.closeCh:
		return nil
	default:
	}
	close(mw.closeCh)
	err := mw.watcher.Close()
	<-mw.done
	return err
}

func (mw *MapWatcher) run() {
	defer close(mw.done)
	pending := make(map[string]time.Time)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !IsMapFile(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()
			timer.Reset(watchDebounce)
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR: map watcher: %v", err)
		case <-timer.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < watchDebounce {
					timer.Reset(watchDebounce - now.Sub(last))
					continue
				}
				delete(pending, path)
				mw.reload(path)
			}
		case <-mw.closeCh:
			timer.Stop()
			return
		}
	}
}

func (mw *MapWatcher) reload(path string) {
	mw.world.Mu.Lock()
	defer mw.world.Mu.Unlock()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		id, ok := mw.world.MapForSource(path)
		if !ok {
			return
		}
		mw.world.RemoveMap(id)
		mw.notify(id)
		return
	}
	id, err := mw.world.LoadMapFile(path)
	if err != nil {
		log.Printf("ERROR: reloading map %s: %v", path, err)
		return
	}
	mw.notify(id)
}

func (mw *MapWatcher) notify(mapID string) {
	if mw.onReload != nil {
		mw.onReload(mapID)
	}
}
