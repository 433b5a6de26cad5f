package metrics

// Operation names recorded by the pipeline
const (
	OpImageStage      = "image_stage"
	OpPhotometryStage = "photometry_stage"
	OpDecompress      = "decompress"
	OpObservation     = "observation"
	OpAggregate       = "aggregate"
	OpSkyPortalExport = "skyportal_export"
	OpXRT             = "xrt_pipeline"
	OpTNSLookup       = "tns_lookup"
	OpArchiveQuery    = "archive_query"
	OpArchiveDownload = "archive_download"
	OpNotify          = "notify"
)

// Stage outcome statuses
const (
	StatusCreated = "created"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error types recorded alongside failures
const (
	ErrorTypeTool          = "tool"
	ErrorTypeTimeout       = "timeout"
	ErrorTypePostcondition = "postcondition"
	ErrorTypeIO            = "io"
	ErrorTypeParse         = "parse"
	ErrorTypeNetwork       = "network"
	ErrorTypeNotFound      = "not_found"
)
