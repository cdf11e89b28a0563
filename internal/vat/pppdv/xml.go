package pppdv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// ErrBlankHeader indicates a required declaration header field is missing.
var ErrBlankHeader = errors.New("pppdv: required header field is blank")

// Header identifies whose declaration this is and for which period.
type Header struct {
	PIB   string
	Name  string
	Year  int
	Month int
}

// Validate checks the header carries everything the envelope requires.
func (h Header) Validate() error {
	if strings.TrimSpace(h.PIB) == "" {
		return fmt.Errorf("%w: PIB", ErrBlankHeader)
	}
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: registered name", ErrBlankHeader)
	}
	if h.Year <= 0 {
		return fmt.Errorf("%w: year", ErrBlankHeader)
	}
	if h.Month < 1 || h.Month > 12 {
		return fmt.Errorf("%w: month", ErrBlankHeader)
	}
	return nil
}

// envelope layout; element order is fixed by struct order.
type declarationXML struct {
	XMLName   xml.Name     `xml:"PPPDV"`
	Submitter submitterXML `xml:"PodaciOPodnosiocu"`
	Period    periodXML    `xml:"PoreskiPeriod"`
	Fields    fieldsXML    `xml:"PodaciOPorezu"`
}

type submitterXML struct {
	PIB  string `xml:"PIB"`
	Name string `xml:"Naziv"`
}

type periodXML struct {
	Year  int    `xml:"Godina"`
	Month string `xml:"Mesec"`
}

type fieldsXML struct {
	Field001 string `xml:"Polje001"`
	Field002 string `xml:"Polje002"`
	Field003 string `xml:"Polje003"`
	Field103 string `xml:"Polje103"`
	Field005 string `xml:"Polje005"`
	Field006 string `xml:"Polje006"`
	Field106 string `xml:"Polje106"`
	Field007 string `xml:"Polje007"`
	Field107 string `xml:"Polje107"`
	Field105 string `xml:"Polje105"`
	Field008 string `xml:"Polje008"`
	Field108 string `xml:"Polje108"`
	Field009 string `xml:"Polje009"`
	Field109 string `xml:"Polje109"`
	Field110 string `xml:"Polje110"`
	Field111 string `xml:"Polje111"`
	Field112 string `xml:"Polje112"`
}

// Serialize renders the declaration envelope. Output is byte-stable for
// identical input: fixed element order, dot-separated 2dp amounts, no
// locale-dependent formatting, header text normalized to NFC.
func Serialize(f Form, h Header) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}

	doc := declarationXML{
		Submitter: submitterXML{
			PIB:  norm.NFC.String(strings.TrimSpace(h.PIB)),
			Name: norm.NFC.String(strings.TrimSpace(h.Name)),
		},
		Period: periodXML{
			Year:  h.Year,
			Month: fmt.Sprintf("%02d", h.Month),
		},
		Fields: fieldsXML{
			Field001: amount(f.Field001),
			Field002: amount(f.Field002),
			Field003: amount(f.Field003),
			Field103: amount(f.Field103),
			Field005: amount(f.Field005),
			Field006: amount(f.Field006),
			Field106: amount(f.Field106),
			Field007: amount(f.Field007),
			Field107: amount(f.Field107),
			Field105: amount(f.Field105),
			Field008: amount(f.Field008),
			Field108: amount(f.Field108),
			Field009: amount(f.Field009),
			Field109: amount(f.Field109),
			Field110: amount(f.Field110),
			Field111: amount(f.Field111),
			Field112: amount(f.Field112),
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("pppdv: marshal declaration: %w", err)
	}
	return xml.Header + string(body) + "\n", nil
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
