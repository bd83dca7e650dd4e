// Package ec2 wraps the AWS EC2 API with per-region clients sharing one
// credential configuration.
package ec2
