package geo

import (
	"sort"
	"strings"

	"eventmap/internal/model"
)

// City is a town or city whose centre is used when a location only names the place.
type City struct {
	Name string
	model.Coordinate
}

// knownVenues are venues that host events regularly. Coordinates are the
// building entrance, so they are returned without any offset.
var knownVenues = map[string]model.Coordinate{
	"st james' park":                  {Lat: 54.9756, Lng: -1.6217},
	"st james park":                   {Lat: 54.9756, Lng: -1.6217},
	"stadium of light":                {Lat: 54.9146, Lng: -1.3883},
	"riverside stadium":               {Lat: 54.5783, Lng: -1.2169},
	"beamish museum":                  {Lat: 54.8818, Lng: -1.6586},
	"durham cathedral":                {Lat: 54.7735, Lng: -1.5762},
	"hartlepool marina":               {Lat: 54.6880, Lng: -1.2020},
	"newcastle civic centre":          {Lat: 54.9786, Lng: -1.6107},
	"the glasshouse":                  {Lat: 54.9679, Lng: -1.6001},
	"sage gateshead":                  {Lat: 54.9679, Lng: -1.6001},
	"baltic centre":                   {Lat: 54.9690, Lng: -1.5980},
	"eldon square":                    {Lat: 54.9750, Lng: -1.6160},
	"metrocentre":                     {Lat: 54.9586, Lng: -1.6661},
	"tynemouth priory":                {Lat: 55.0176, Lng: -1.4170},
	"preston park museum":             {Lat: 54.5460, Lng: -1.3370},
	"national glass centre":           {Lat: 54.9127, Lng: -1.3770},
	"durham county hall":              {Lat: 54.7870, Lng: -1.5890},
	"hexham abbey":                    {Lat: 54.9710, Lng: -2.1010},
	"alnwick castle":                  {Lat: 55.4156, Lng: -1.7059},
	"bamburgh castle":                 {Lat: 55.6090, Lng: -1.7099},
	"kielder water":                   {Lat: 55.1960, Lng: -2.5200},
	"roker pier":                      {Lat: 54.9226, Lng: -1.3605},
	"south shields town hall":         {Lat: 54.9955, Lng: -1.4326},
	"darlington railway museum":       {Lat: 54.5360, Lng: -1.5530},
	"middlesbrough town hall":         {Lat: 54.5760, Lng: -1.2340},
	"hartlepool maritime experience":  {Lat: 54.6890, Lng: -1.2060},
	"sunderland minster":              {Lat: 54.9055, Lng: -1.3862},
	"gateshead international stadium": {Lat: 54.9570, Lng: -1.5790},
	"washington wetland centre":       {Lat: 54.8930, Lng: -1.4940},
	"cramlington rbl":                 {Lat: 55.0860, Lng: -1.5850},
}

// knownCities is the fixed list of Northeast England places. A location that
// merely contains one of these names lands near its centre.
var knownCities = []City{
	{"newcastle upon tyne", model.Coordinate{Lat: 54.9783, Lng: -1.6178}},
	{"newcastle", model.Coordinate{Lat: 54.9783, Lng: -1.6178}},
	{"gateshead", model.Coordinate{Lat: 54.9527, Lng: -1.6034}},
	{"sunderland", model.Coordinate{Lat: 54.9069, Lng: -1.3838}},
	{"durham", model.Coordinate{Lat: 54.7761, Lng: -1.5733}},
	{"middlesbrough", model.Coordinate{Lat: 54.5742, Lng: -1.2350}},
	{"hartlepool", model.Coordinate{Lat: 54.6863, Lng: -1.2129}},
	{"darlington", model.Coordinate{Lat: 54.5235, Lng: -1.5528}},
	{"stockton-on-tees", model.Coordinate{Lat: 54.5705, Lng: -1.3182}},
	{"stockton", model.Coordinate{Lat: 54.5705, Lng: -1.3182}},
	{"south shields", model.Coordinate{Lat: 54.9986, Lng: -1.4323}},
	{"north shields", model.Coordinate{Lat: 55.0097, Lng: -1.4448}},
	{"tynemouth", model.Coordinate{Lat: 55.0176, Lng: -1.4257}},
	{"whitley bay", model.Coordinate{Lat: 55.0396, Lng: -1.4426}},
	{"blyth", model.Coordinate{Lat: 55.1270, Lng: -1.5085}},
	{"ashington", model.Coordinate{Lat: 55.1780, Lng: -1.5680}},
	{"morpeth", model.Coordinate{Lat: 55.1681, Lng: -1.6881}},
	{"hexham", model.Coordinate{Lat: 54.9719, Lng: -2.1019}},
	{"consett", model.Coordinate{Lat: 54.8540, Lng: -1.8316}},
	{"chester-le-street", model.Coordinate{Lat: 54.8586, Lng: -1.5740}},
	{"washington", model.Coordinate{Lat: 54.9000, Lng: -1.5200}},
	{"peterlee", model.Coordinate{Lat: 54.7600, Lng: -1.3360}},
	{"seaham", model.Coordinate{Lat: 54.8390, Lng: -1.3390}},
	{"bishop auckland", model.Coordinate{Lat: 54.6640, Lng: -1.6770}},
	{"redcar", model.Coordinate{Lat: 54.6180, Lng: -1.0690}},
	{"billingham", model.Coordinate{Lat: 54.6050, Lng: -1.2900}},
	{"cramlington", model.Coordinate{Lat: 55.0860, Lng: -1.5850}},
	{"jarrow", model.Coordinate{Lat: 54.9800, Lng: -1.4850}},
	{"wallsend", model.Coordinate{Lat: 54.9910, Lng: -1.5340}},
	{"alnwick", model.Coordinate{Lat: 55.4130, Lng: -1.7060}},
	{"berwick-upon-tweed", model.Coordinate{Lat: 55.7710, Lng: -2.0070}},
	{"spennymoor", model.Coordinate{Lat: 54.6980, Lng: -1.6020}},
	{"newton aycliffe", model.Coordinate{Lat: 54.6180, Lng: -1.5800}},
	{"stanley", model.Coordinate{Lat: 54.8680, Lng: -1.6970}},
	{"houghton-le-spring", model.Coordinate{Lat: 54.8410, Lng: -1.4690}},
	{"guisborough", model.Coordinate{Lat: 54.5350, Lng: -1.0560}},
	{"saltburn", model.Coordinate{Lat: 54.5830, Lng: -0.9740}},
	{"thornaby", model.Coordinate{Lat: 54.5330, Lng: -1.3000}},
	{"prudhoe", model.Coordinate{Lat: 54.9610, Lng: -1.8590}},
}

// Table is the read-only known-location reference data.
type Table struct {
	exact     map[string]model.Coordinate
	venueKeys []string // multi-word venue keys, longest first
	cities    []City   // longest name first
}

// DefaultTable returns the built-in Northeast England table.
func DefaultTable() *Table {
	return NewTable(knownVenues, knownCities)
}

// NewTable builds a table. Keys are normalized to lowercase; every city is
// also reachable by exact match as "<city>" and "<city>, uk".
func NewTable(venues map[string]model.Coordinate, cities []City) *Table {
	t := &Table{exact: make(map[string]model.Coordinate, len(venues)+2*len(cities))}

	for _, c := range cities {
		name := Normalize(c.Name)
		t.cities = append(t.cities, City{Name: name, Coordinate: c.Coordinate})
		t.exact[name] = c.Coordinate
		t.exact[name+", uk"] = c.Coordinate
	}
	for k, c := range venues {
		name := Normalize(k)
		t.exact[name] = c
		if strings.Contains(name, " ") {
			t.venueKeys = append(t.venueKeys, name)
		}
	}

	sort.Slice(t.venueKeys, func(i, j int) bool {
		a, b := t.venueKeys[i], t.venueKeys[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	sort.SliceStable(t.cities, func(i, j int) bool {
		return len(t.cities[i].Name) > len(t.cities[j].Name)
	})
	return t
}

// Normalize lowercases and trims a place string.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Exact returns the coordinate stored under the normalized name.
func (t *Table) Exact(name string) (model.Coordinate, bool) {
	c, ok := t.exact[Normalize(name)]
	return c, ok
}

// Venue returns the first multi-word venue key contained in text, longest first.
func (t *Table) Venue(text string) (string, model.Coordinate, bool) {
	n := Normalize(text)
	for _, k := range t.venueKeys {
		if strings.Contains(n, k) {
			return k, t.exact[k], true
		}
	}
	return "", model.Coordinate{}, false
}

// City returns the first city name contained in text, longest first.
func (t *Table) City(text string) (City, bool) {
	n := Normalize(text)
	for _, c := range t.cities {
		if strings.Contains(n, c.Name) {
			return c, true
		}
	}
	return City{}, false
}

// Cities returns the city list, longest name first.
func (t *Table) Cities() []City {
	return append([]City(nil), t.cities...)
}
