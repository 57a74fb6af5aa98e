package metrics

import "time"

type timer struct {
	start time.Time
	name  string
	tags  map[string]string
	rate  float64
}

func (t *timer) Start() {
	t.start = time.Now()
}

func (t *timer) Done() {
	milliseconds := float64(time.Since(t.start).Nanoseconds()) / float64(time.Millisecond)
	TimeInMilliseconds(t.name, milliseconds, t.tags, t.rate)
}

func (t *timer) SetTags(tags map[string]string) {
	if t.tags == nil {
		t.tags = make(map[string]string, 2)
	}
	for k, v := range tags {
		t.tags[k] = v
	}
}
