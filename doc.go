// Package flowfile reads and writes files of fixed-size binary
// network-flow records, layering optional per-block compression,
// byte-order normalization, and buffering over a raw descriptor.
//
// A file is a self-describing header followed by records in one of the
// header's declared (format, version) layouts.  The Stream handle owns
// the header, the block transport, and the codec resolved from them:
//
//	s, err := flowfile.New(flowfile.ModeRead, flowfile.ContentFlow)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Bind("flows.rw"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Open(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.ReadHeader(); err != nil {
//	    log.Fatal(err)
//	}
//
//	var rec flowfile.Record
//	for {
//	    err := s.ReadRecord(&rec)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("%s -> %s %d pkts\n", rec.SIP, rec.DIP, rec.Packets)
//	}
//
// Writing mirrors reading: set the format (and optionally the record
// version and compression method) on the header, call WriteHeader, and
// then WriteRecord for each flow.
package flowfile
