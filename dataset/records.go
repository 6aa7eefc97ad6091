package dataset

import (
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

type jsonCell struct {
	set    bool
	number bool
	f      float64
	s      string
}

// FromJSON decodes a JSON array of row objects into a Frame. Columns appear in the
// order their keys are first seen. A column is numeric when every non-null value is a
// JSON number; keys absent from a row read as missing.
func FromJSON(raw []byte) (*Frame, error) {
	iter := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowIterator(raw)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ArrayValue {
		return nil, errors.NewValueError("FromJSON", "payload must be a JSON array of objects")
	}

	var (
		order []string
		data  = map[string][]jsonCell{}
		nRows int
		err   error
	)

	iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		if it.WhatIsNext() != jsoniter.ObjectValue {
			err = errors.NewValueError("FromJSON", "row "+strconv.Itoa(nRows)+" is not a JSON object")
			return false
		}
		row := nRows
		it.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			cells, seen := data[key]
			if !seen {
				order = append(order, key)
			}
			for len(cells) < row {
				cells = append(cells, jsonCell{})
			}

			var c jsonCell
			switch it.WhatIsNext() {
			case jsoniter.NumberValue:
				c = jsonCell{set: true, number: true, f: it.ReadFloat64()}
			case jsoniter.StringValue:
				c = jsonCell{set: true, s: it.ReadString()}
			case jsoniter.BoolValue:
				c = jsonCell{set: true, s: strconv.FormatBool(it.ReadBool())}
			case jsoniter.NilValue:
				it.ReadNil()
			default:
				err = errors.NewValueError("FromJSON", "column "+strconv.Quote(key)+" holds a nested value")
				return false
			}
			if len(cells) > row {
				err = errors.NewValueError("FromJSON", "duplicate key "+strconv.Quote(key)+" in row "+strconv.Itoa(row))
				return false
			}
			data[key] = append(cells, c)
			return true
		})
		nRows++
		return err == nil && it.Error == nil
	})
	if err != nil {
		return nil, err
	}
	if iter.Error != nil {
		return nil, errors.NewValueError("FromJSON", "malformed JSON: "+iter.Error.Error())
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return nil, errors.NewValueError("FromJSON", "unexpected data after the JSON array")
	}

	cols := make([]*Column, len(order))
	for j, name := range order {
		cells := data[name]
		for len(cells) < nRows {
			cells = append(cells, jsonCell{})
		}
		cols[j] = jsonColumn(name, cells)
	}
	return NewFrame(cols...)
}

func jsonColumn(name string, cells []jsonCell) *Column {
	numeric := false
	for _, c := range cells {
		if !c.set {
			continue
		}
		if !c.number {
			numeric = false
			break
		}
		numeric = true
	}

	if numeric {
		floats := make([]float64, len(cells))
		for i, c := range cells {
			if c.set {
				floats[i] = c.f
			} else {
				floats[i] = math.NaN()
			}
		}
		return &Column{Name: name, Kind: Numeric, Floats: floats}
	}

	strs := make([]string, len(cells))
	for i, c := range cells {
		switch {
		case !c.set:
		case c.number:
			strs[i] = strconv.FormatFloat(c.f, 'g', -1, 64)
		default:
			strs[i] = c.s
		}
	}
	return &Column{Name: name, Kind: Categorical, Strings: strs}
}

// ToJSON encodes the frame as a JSON array of row objects in column order. Missing
// cells are written as null.
func (f *Frame) ToJSON() ([]byte, error) {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteArrayStart()
	for i := 0; i < f.rows; i++ {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectStart()
		for j, c := range f.cols {
			if j > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(c.Name)
			switch {
			case c.IsMissing(i):
				stream.WriteNil()
			case c.Kind == Numeric:
				stream.WriteFloat64(c.Floats[i])
			default:
				stream.WriteString(c.Strings[i])
			}
		}
		stream.WriteObjectEnd()
	}
	stream.WriteArrayEnd()
	if stream.Error != nil {
		return nil, errors.Wrap(stream.Error, "encode frame")
	}
	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}
