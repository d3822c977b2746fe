// Command saltserver serves WordPress keys and salts for provisioning runs
// that cannot reach api.wordpress.org. Point the provisioner at it with
// --salt-url http://<listen-addr>/secret-key/1.1/salt/.
package main
