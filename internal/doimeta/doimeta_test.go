package doimeta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIndexedName(t *testing.T) {
	tests := []struct {
		family, given, want string
	}{
		{"Smith", "John", "Smith J."},
		{"Mur-Artal", "Raúl", "Mur-Artal R."},
		{"Montiel", "J. M. M.", "Montiel J.M.M."},
		{"Tardós", "Juan-Domingo", "Tardós J.D."},
		{"Consortium", "", "Consortium"},
		{"", "Ada", "A."},
	}
	for _, tt := range tests {
		if got := indexedName(tt.family, tt.given); got != tt.want {
			t.Errorf("indexedName(%q, %q) = %q, want %q", tt.family, tt.given, got, tt.want)
		}
	}
}

func TestDOIClient_Lookup(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		if r.URL.Path != "/10.1109/LRA.2018.2800120" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{
			"DOI": "10.1109/LRA.2018.2800120",
			"title": "Efficient Decentralized Visual Place Recognition",
			"container-title": ["IEEE Robotics and Automation Letters"],
			"author": [{"family": "Cieslewski", "given": "Titus"}, {"literal": "RPG Team"}],
			"issued": {"date-parts": [[2018, 4]]},
			"is-referenced-by-count": 143
		}`))
	}))
	defer srv.Close()

	c := NewDOIClient(WithBaseURL(srv.URL))
	m, err := c.Lookup(context.Background(), " 10.1109/LRA.2018.2800120 ")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !strings.Contains(accept, "csl+json") {
		t.Errorf("Accept = %q", accept)
	}
	if m.Title != "Efficient Decentralized Visual Place Recognition" || m.Year != 2018 || m.CitedBy != 143 {
		t.Errorf("Lookup() = %+v", m)
	}
	if m.Venue != "IEEE Robotics and Automation Letters" {
		t.Errorf("Venue = %q", m.Venue)
	}
	if len(m.Authors) != 2 || m.Authors[0] != "Cieslewski T." || m.Authors[1] != "RPG Team" {
		t.Errorf("Authors = %v", m.Authors)
	}

	if _, err := c.Lookup(context.Background(), "10.1/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
	if _, err := c.Lookup(context.Background(), "  "); err == nil {
		t.Error("Lookup() of empty DOI should fail")
	}
}

func TestDOIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewDOIClient(WithBaseURL(srv.URL)).Lookup(context.Background(), "10.1/x")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup() error = %v", err)
	}
}

const absPage = `<html><head>
<meta name="citation_title" content="Kimera: an Open-Source Library for Real-Time Metric-Semantic Localization and Mapping" />
<meta name="citation_author" content="Rosinol, Antoni" />
<meta name="citation_author" content="Carlone, Luca" />
<meta name="citation_date" content="2019/10/06" />
</head><body>
<h1 class="title mathjax"><span class="descriptor">Title:</span>Kimera</h1>
</body></html>`

const bareAbsPage = `<html><body>
<h1 class="title mathjax">Title: Bare Page</h1>
<div class="authors"><a href="#">Jane Roe</a>, <a href="#">John Doe</a></div>
<div class="dateline">[Submitted on 6 Oct 2019]</div>
</body></html>`

func TestArxivClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/abs/1910.02490":
			w.Write([]byte(absPage))
		case "/abs/2001.00001":
			w.Write([]byte(bareAbsPage))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := NewArxivClient(WithBaseURL(srv.URL))

	m, err := c.Lookup(context.Background(), "arXiv:1910.02490")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !strings.HasPrefix(m.Title, "Kimera: an Open-Source Library") {
		t.Errorf("Title = %q", m.Title)
	}
	if m.ArXiv != "1910.02490" || m.Year != 2019 || m.Venue != "arXiv" {
		t.Errorf("Lookup() = %+v", m)
	}
	if len(m.Authors) != 2 || m.Authors[0] != "Rosinol A." {
		t.Errorf("Authors = %v", m.Authors)
	}

	bare, err := c.Lookup(context.Background(), "https://arxiv.org/abs/2001.00001")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if bare.Title != "Bare Page" || bare.Year != 2019 || len(bare.Authors) != 2 {
		t.Errorf("fallback parse = %+v", bare)
	}

	if _, err := c.Lookup(context.Background(), "9999.99999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestNormalizeArxivID(t *testing.T) {
	for in, want := range map[string]string{
		"1910.02490":                       "1910.02490",
		" arXiv:1910.02490 ":               "1910.02490",
		"https://arxiv.org/abs/1910.02490": "1910.02490",
	} {
		if got := NormalizeArxivID(in); got != want {
			t.Errorf("NormalizeArxivID(%q) = %q, want %q", in, got, want)
		}
	}
}
