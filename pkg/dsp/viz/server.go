package viz

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Producer renders one chart on demand. GetImage may return nil when it has nothing to
// show yet.
type Producer interface {
	Name() string
	GetImage() *ImageContainer
}

// Server renders registered producers while someone is looking at them and serves the
// resulting images over HTTP.
type Server struct {
	images          map[string]map[string]*ImageContainer
	mu              sync.RWMutex
	srv             *http.Server
	producerBuckets map[string]map[string]Producer
	updateInterval  time.Duration
	enabled         bool
	lastViewed      map[string]time.Time
}

func NewServer(port int, updateInterval time.Duration) *Server {
	s := &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		lastViewed:      make(map[string]time.Time),
		srv:             &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval:  updateInterval,
		enabled:         true,
	}
	s.srv.Handler = s.Handler()
	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) Register(key string, p Producer) {
	s.mu.Lock()
	bucket, ok := s.producerBuckets[key]
	if !ok {
		bucket = make(map[string]Producer)
		s.producerBuckets[key] = bucket
	}
	bucket[p.Name()] = p
	s.mu.Unlock()
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.refreshLoop(ctx)
	go func() {
		<-ctx.Done()
		s.srv.Shutdown(context.Background())
	}()

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateInterval
}

func (s *Server) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval()):
			s.Refresh(time.Second)
		}
	}
}

// Refresh re-renders every bucket viewed within the last viewedWithin.
func (s *Server) Refresh(viewedWithin time.Duration) {
	type job struct {
		bucket string
		p      Producer
	}
	var jobs []job

	s.mu.RLock()
	if !s.enabled {
		s.mu.RUnlock()
		return
	}
	for bucketName, bucket := range s.producerBuckets {
		if time.Since(s.lastViewed[bucketName]) >= viewedWithin {
			continue
		}
		for _, p := range bucket {
			jobs = append(jobs, job{bucket: bucketName, p: p})
		}
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()

			img := j.p.GetImage()
			if img == nil {
				return
			}
			s.mu.Lock()
			mb, ok := s.images[j.bucket]
			if !ok {
				mb = make(map[string]*ImageContainer)
				s.images[j.bucket] = mb
			}
			mb[img.name] = img
			s.mu.Unlock()
		}(j)
	}
	wg.Wait()
}

// MarkViewed records that bucket is being looked at, so the next refresh renders it.
func (s *Server) MarkViewed(bucket string) {
	s.mu.Lock()
	s.lastViewed[bucket] = time.Now()
	s.mu.Unlock()
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	handler := httprouter.New()
	handler.GET("/", s.handleIndex)
	handler.GET("/view/:bucket", s.handleView)
	handler.GET("/img/:bucket/:img", s.handleImage)
	return handler
}

func (s *Server) sortedBuckets() []string {
	keys := make([]string, 0, len(s.producerBuckets))
	for key := range s.producerBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.RLock()
	keys := s.sortedBuckets()
	s.mu.RUnlock()

	if len(keys) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Location", "/view/"+url.PathEscape(keys[0]))
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucket := params.ByName("bucket")

	s.mu.RLock()
	itemsForBucket, ok := s.producerBuckets[bucket]
	var names []string
	for key := range itemsForBucket {
		names = append(names, key)
	}
	buckets := s.sortedBuckets()
	interval := s.updateInterval
	s.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sort.Strings(names)
	s.MarkViewed(bucket)

	w.Header().Add("Content-Type", "text/html")
	fmt.Fprint(w, `<html><head><title>uartscope</title></head>`)
	fmt.Fprintf(w, `
		<script type="text/javascript">
			var toggleRefresh = true;
			function toggleOn() {
				toggleRefresh = !toggleRefresh;
			}

			function changeBucket() {
				var val = document.getElementById('bucketSelector').value;
				window.location.href = '/view/' + val;
			}
			window.onload = function() {
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						if (toggleRefresh) {
							image.src = image.src.split("?")[0] + "?" + new Date().getTime();
						}
					}, %d, img);
				}
			}
		</script>`, len(names), interval.Milliseconds())
	fmt.Fprint(w, `<body style='background-color: black'>`)

	fmt.Fprint(w, `<select id="bucketSelector" onchange="changeBucket()">`)
	for _, bucketName := range buckets {
		selected := ""
		if bucketName == bucket {
			selected = " selected"
		}
		fmt.Fprintf(w, `<option value="%s"%s>%s</option>`, html.EscapeString(bucketName), selected, html.EscapeString(bucketName))
	}
	fmt.Fprint(w, `</select>`)
	fmt.Fprint(w, `<button onclick="toggleOn()">Refresh?</button>`)

	fmt.Fprint(w, `<div style="display: flex; flex-direction: row; flex-wrap: wrap">`)
	for idx, key := range names {
		fmt.Fprintf(w, `<div><img id="graph-%d" src="/img/%s/%s?%d" /></div>`,
			idx, url.PathEscape(bucket), url.PathEscape(key), time.Now().UnixMicro())
	}
	fmt.Fprint(w, `</div></body></html>`)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucketName := params.ByName("bucket")
	s.MarkViewed(bucketName)

	s.mu.RLock()
	img, ok := s.images[bucketName][params.ByName("img")]
	s.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Add("Content-Type", "image/png")
	w.Write(img.data)
}
